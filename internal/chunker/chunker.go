// Package chunker splits untimed text into bounded chunks for the speech endpoint.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars is the chunk size the speech endpoint accepts comfortably
const DefaultMaxChars = 200

// sentenceUnit matches a sentence body followed by its run of terminators.
// A run such as "?!" or "..." is a single split point.
var sentenceUnit = regexp.MustCompile(`[^.!?]+[.!?]*`)

// Split breaks text into sentence-aligned chunks of at most maxChars runes.
// Every closed chunk ends with a terminator; a period is added when the
// source sentence had none. A single sentence longer than maxChars is
// hard-split into maxChars slices and nothing is appended to them.
func Split(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	chunks := make([]string, 0)
	current := ""

	for _, sentence := range Sentences(text) {
		if utf8.RuneCountInString(sentence) > maxChars {
			if current != "" {
				chunks = append(chunks, current)
				current = ""
			}
			chunks = append(chunks, hardSplit(sentence, maxChars)...)
			continue
		}

		if !terminated(sentence) && utf8.RuneCountInString(sentence) < maxChars {
			sentence += "."
		}

		candidate := sentence
		if current != "" {
			candidate = current + " " + sentence
		}

		if utf8.RuneCountInString(candidate) <= maxChars {
			current = candidate
			continue
		}

		chunks = append(chunks, current)
		current = sentence
	}

	if current != "" {
		chunks = append(chunks, current)
	}

	return chunks
}

// Sentences returns the trimmed sentence units of text, each keeping its
// own terminator run. Units without any word content are dropped.
func Sentences(text string) []string {
	matches := sentenceUnit.FindAllString(text, -1)
	units := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if strings.TrimSpace(strings.TrimRight(m, ".!?")) == "" {
			continue
		}
		units = append(units, m)
	}
	return units
}

func terminated(s string) bool {
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}

// hardSplit slices s into pieces of at most n runes
func hardSplit(s string, n int) []string {
	runes := []rune(s)
	pieces := make([]string, 0, len(runes)/n+1)
	for i := 0; i < len(runes); i += n {
		end := i + n
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[i:end]))
	}
	return pieces
}
