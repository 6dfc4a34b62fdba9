// Package entity provides the named-entity extraction capability used by the
// intent pipeline to validate that a candidate intent does not introduce
// entities absent from the user's message.
package entity

import (
	"strings"
	"unicode"
)

// Extractor extracts named entities from text. Implementations return entity
// strings lowercased so comparisons are case insensitive.
type Extractor interface {
	Extract(text string) []string
}

// HeuristicExtractor is a dependency-free Extractor that detects capitalized
// token sequences (skipping a sentence-initial capital) and all-caps
// acronyms.
type HeuristicExtractor struct{}

// NewHeuristicExtractor creates a heuristic extractor.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

// Extract implements Extractor.
func (e *HeuristicExtractor) Extract(text string) []string {
	tokens := strings.Fields(text)
	var entities []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			entities = append(entities, strings.ToLower(strings.Join(current, " ")))
			current = nil
		}
	}

	for i, token := range tokens {
		trimmed := strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if trimmed == "" {
			flush()
			continue
		}

		switch {
		case isAcronym(trimmed):
			flush()
			entities = append(entities, strings.ToLower(trimmed))
		case isCapitalized(trimmed) && !(i == 0 && len(current) == 0):
			current = append(current, trimmed)
		default:
			flush()
		}

		// Punctuation after the token ends any running sequence.
		if trimmed != token && !strings.HasPrefix(token, trimmed) {
			flush()
		}
	}
	flush()

	return dedup(entities)
}

func isCapitalized(token string) bool {
	runes := []rune(token)
	if len(runes) < 2 {
		return false
	}
	if !unicode.IsUpper(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func isAcronym(token string) bool {
	runes := []rune(token)
	if len(runes) < 2 {
		return false
	}
	for _, r := range runes {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func dedup(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
