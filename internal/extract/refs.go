// Package extract parses issue references out of free text (PR titles and
// bodies). All functions are pure: no side effects, and absence of matches
// returns an empty slice, never an error.
package extract

import (
	"regexp"
	"strings"
)

// RefType distinguishes a closing reference ("Fixes #12") from a plain
// mention ("see #12").
type RefType string

const (
	RefCloses     RefType = "closes"
	RefReferences RefType = "references"
)

// Reference is one extracted issue reference.
type Reference struct {
	IssueKey string // normalized key: upper-cased Jira key, or bare issue number
	RefType  RefType
	RawMatch string // case-preserving matched text
}

var (
	// Jira keys: PROJ-123. Keys compare case-insensitively, so the match is
	// case-insensitive and IssueKey is normalized to upper case.
	jiraKeyPattern = regexp.MustCompile(`(?i)\b([A-Z][A-Z0-9]+-[0-9]+)\b`)

	// GitHub/GitLab short refs: #123, optionally preceded by a closing verb.
	issueRefPattern = regexp.MustCompile(`(?i)(?:\b(close[sd]?|fix(?:e[sd])?|resolve[sd]?)\b[:\s]*)?#([0-9]+)\b`)

	closingVerbPattern = regexp.MustCompile(`(?i)\b(close[sd]?|fix(?:e[sd])?|resolve[sd]?)\b[:\s]*$`)
)

// JiraKeys extracts Jira issue keys from text. A key immediately preceded
// by a closing verb ("Fixes ABC-123") is reported as RefCloses.
func JiraKeys(text string) []Reference {
	if text == "" {
		return nil
	}
	var refs []Reference
	for _, loc := range jiraKeyPattern.FindAllStringSubmatchIndex(text, -1) {
		raw := text[loc[2]:loc[3]]
		refType := RefReferences
		if closingVerbPattern.MatchString(text[:loc[2]]) {
			refType = RefCloses
		}
		refs = append(refs, Reference{
			IssueKey: strings.ToUpper(raw),
			RefType:  refType,
			RawMatch: raw,
		})
	}
	return refs
}

// GitHubIssueRefs extracts #N references from text. The verb group decides
// between a closing reference and a plain mention.
func GitHubIssueRefs(text string) []Reference {
	return numberRefs(text)
}

// GitLabIssueRefs extracts #N references from text. GitLab shares GitHub's
// short-reference grammar for issues.
func GitLabIssueRefs(text string) []Reference {
	return numberRefs(text)
}

func numberRefs(text string) []Reference {
	if text == "" {
		return nil
	}
	var refs []Reference
	for _, loc := range issueRefPattern.FindAllStringSubmatchIndex(text, -1) {
		refType := RefReferences
		if loc[2] >= 0 {
			refType = RefCloses
		}
		refs = append(refs, Reference{
			IssueKey: text[loc[4]:loc[5]],
			RefType:  refType,
			RawMatch: text[loc[0]:loc[1]],
		})
	}
	return refs
}
