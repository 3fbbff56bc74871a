package modmail

import "strings"

// MaxMessageRunes is the longest message the chat platform accepts.
const MaxMessageRunes = 2000

// SplitMessage breaks text into parts of at most limit runes. A part ends
// at the last newline in its second half when there is one, otherwise
// at the limit. Short text is returned as a single part.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i >= limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
