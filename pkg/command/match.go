package command

import (
	"slices"
	"strings"
)

const maxSuggestions = 5

// Suggestions returns up to five known verbs or aliases starting with the
// given partial input. Only single-token input is completed.
func Suggestions(partial string) []string {
	text := Normalize(partial)
	if text == "" || strings.Contains(text, " ") {
		return nil
	}

	var out []string
	for _, table := range [][]alias{systemAliases, storyVerbs} {
		for _, a := range table {
			if strings.HasPrefix(a.words, text) && !slices.Contains(out, a.words) {
				out = append(out, a.words)
			}
		}
	}
	slices.Sort(out)
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

// MatchItem finds the item the player most likely meant: an exact match
// first, then a substring match either way, then any shared word.
func MatchItem(input string, items []string) (string, bool) {
	needle := Normalize(input)
	if needle == "" {
		return "", false
	}

	for _, item := range items {
		if Normalize(item) == needle {
			return item, true
		}
	}
	for _, item := range items {
		n := Normalize(item)
		if strings.Contains(n, needle) || strings.Contains(needle, n) {
			return item, true
		}
	}
	words := strings.Fields(needle)
	for _, item := range items {
		for _, w := range strings.Fields(Normalize(item)) {
			if slices.Contains(words, w) {
				return item, true
			}
		}
	}
	return "", false
}
