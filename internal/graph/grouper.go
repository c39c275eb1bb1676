package graph

import (
	"sort"

	"github.com/devhealthops/workgraph/internal/models"
)

// Component is one connected component of the work graph: the node set of a
// work unit plus the de-duplicated edges touching those nodes.
type Component struct {
	Nodes []models.NodeKey
	Edges []models.WorkGraphEdge
}

// Components treats the edge set as an undirected adjacency structure and
// returns its connected components. Isolated nodes never appear: a node only
// enters the graph through an edge. Nodes and edges within a component are
// sorted, and components are ordered by their first node, so the same edge
// set always yields the same output regardless of input order.
func Components(edges []models.WorkGraphEdge) []Component {
	adjacency := make(map[models.NodeKey][]models.NodeKey)
	edgesByNode := make(map[models.NodeKey][]models.WorkGraphEdge)

	for _, edge := range edges {
		source, target := edge.Source(), edge.Target()
		adjacency[source] = append(adjacency[source], target)
		adjacency[target] = append(adjacency[target], source)
		edgesByNode[source] = append(edgesByNode[source], edge)
		edgesByNode[target] = append(edgesByNode[target], edge)
	}

	// Deterministic traversal order over the node set
	roots := make([]models.NodeKey, 0, len(adjacency))
	for node := range adjacency {
		roots = append(roots, node)
	}
	sortNodes(roots)

	visited := make(map[models.NodeKey]struct{}, len(adjacency))
	var components []Component

	for _, root := range roots {
		if _, ok := visited[root]; ok {
			continue
		}
		visited[root] = struct{}{}

		var nodes []models.NodeKey
		componentEdges := make(map[string]models.WorkGraphEdge)
		stack := []models.NodeKey{root}
		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			nodes = append(nodes, current)
			for _, edge := range edgesByNode[current] {
				if _, ok := componentEdges[edge.EdgeID]; !ok {
					componentEdges[edge.EdgeID] = edge
				}
			}
			for _, neighbor := range adjacency[current] {
				if _, ok := visited[neighbor]; ok {
					continue
				}
				visited[neighbor] = struct{}{}
				stack = append(stack, neighbor)
			}
		}

		sortNodes(nodes)
		flat := make([]models.WorkGraphEdge, 0, len(componentEdges))
		for _, edge := range componentEdges {
			flat = append(flat, edge)
		}
		sort.Slice(flat, func(i, j int) bool { return flat[i].EdgeID < flat[j].EdgeID })

		components = append(components, Component{Nodes: nodes, Edges: flat})
	}

	return components
}

func sortNodes(nodes []models.NodeKey) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Type != nodes[j].Type {
			return nodes[i].Type < nodes[j].Type
		}
		return nodes[i].ID < nodes[j].ID
	})
}
