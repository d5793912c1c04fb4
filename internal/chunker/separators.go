package chunker

import (
	"regexp"
	"strings"
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Normalize collapses the irregular whitespace PDF extraction produces. Blank
// lines survive as paragraph breaks, single line breaks become spaces.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	paragraphs := paragraphBreak.Split(text, -1)
	kept := paragraphs[:0]
	for _, p := range paragraphs {
		if collapsed := strings.Join(strings.Fields(p), " "); collapsed != "" {
			kept = append(kept, collapsed)
		}
	}
	return strings.Join(kept, "\n\n")
}

type separator struct {
	join    string
	present func(string) bool
	split   func(string) []string
}

// Ordered from coarsest to finest. The rune level always applies.
var separators = []separator{
	{
		join:    "\n\n",
		present: func(s string) bool { return strings.Contains(s, "\n\n") },
		split:   func(s string) []string { return strings.Split(s, "\n\n") },
	},
	{
		join:    " ",
		present: func(s string) bool { return sentenceEnd(s, 0) >= 0 },
		split:   splitSentences,
	},
	{
		join:    " ",
		present: func(s string) bool { return strings.Contains(s, " ") },
		split:   func(s string) []string { return strings.Split(s, " ") },
	},
	{
		join:    "",
		present: func(string) bool { return true },
		split:   splitRunes,
	},
}

// sentenceEnd returns the byte index just past the next '.', '!' or '?' that is
// followed by a space, or -1.
func sentenceEnd(s string, from int) int {
	for i := from; i+1 < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' {
				return i + 1
			}
		}
	}
	return -1
}

func splitSentences(s string) []string {
	var out []string
	start := 0
	for {
		end := sentenceEnd(s, start)
		if end < 0 {
			break
		}
		out = append(out, s[start:end])
		start = end + 1
	}
	return append(out, s[start:])
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
