// Package transcript joins recognized speech segments into answer text.
package transcript

import "strings"

// Normalize collapses runs of whitespace and trims both ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Append commits one final segment to an existing answer draft.
//
// The draft keeps its own interior formatting; only its trailing whitespace
// is trimmed before the segment is joined with a single space.
func Append(draft string, segment string) string {
	segment = Normalize(segment)
	if segment == "" {
		return draft
	}

	head := strings.TrimRightFunc(draft, isSpace)
	if strings.TrimSpace(head) == "" {
		return segment
	}
	return head + " " + segment
}

// Preview renders the draft followed by in-flight interim text for display.
// Interim text never becomes part of the stored answer.
func Preview(draft string, interim string) string {
	interim = Normalize(interim)
	if interim == "" {
		return draft
	}
	return Append(draft, interim)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
