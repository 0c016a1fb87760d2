// Package cli provides a lightweight CLI framework with colored help,
// subcommand dispatch, and "did you mean?" suggestions.
package cli

import "github.com/lithammer/fuzzysearch/fuzzy"

// Suggest returns the best-ranked candidate that contains input as a
// case-insensitive in-order subsequence, or "" if no candidate does.
func Suggest(input string, candidates []string) string {
	if input == "" || len(candidates) == 0 {
		return ""
	}

	ranks := fuzzy.RankFindNormalizedFold(input, candidates)
	if len(ranks) == 0 {
		return ""
	}
	ranks.Sort()
	return ranks[0].Target
}
