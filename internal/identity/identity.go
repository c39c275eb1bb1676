// Package identity holds the deterministic ID functions for graph nodes,
// edges, and work units. Every build must reproduce the same IDs from the
// same inputs; that property is what makes edge writes idempotent.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/devhealthops/workgraph/internal/models"
	"github.com/google/uuid"
)

// PRID returns the stable composite node ID for a pull request.
func PRID(repoID uuid.UUID, number int) string {
	return fmt.Sprintf("%s#pr%d", repoID, number)
}

// CommitID returns the stable composite node ID for a commit.
func CommitID(repoID uuid.UUID, hash string) string {
	return fmt.Sprintf("%s@%s", repoID, hash)
}

// EdgeID hashes the edge tuple in fixed field order. Direction matters:
// (A, blocks, B) and (B, blocks, A) hash differently. The fields are
// pipe-joined, never sorted.
func EdgeID(sourceType models.NodeType, sourceID string, edgeType models.EdgeType, targetType models.NodeType, targetID string) string {
	payload := strings.Join([]string{
		string(sourceType), sourceID, string(edgeType), string(targetType), targetID,
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// WorkUnitID hashes the sorted, de-duplicated "type:id" tokens of a
// component's nodes. Unlike EdgeID it is order-independent: any permutation
// or duplication of the same node set yields the same ID.
func WorkUnitID(nodes []models.NodeKey) string {
	tokens := make([]string, 0, len(nodes))
	seen := make(map[string]struct{}, len(nodes))
	for _, node := range nodes {
		token := string(node.Type) + ":" + node.ID
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	sum := sha256.Sum256([]byte(strings.Join(tokens, "|")))
	return hex.EncodeToString(sum[:])
}
