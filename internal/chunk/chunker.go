// Package chunk splits long text into transport-safe pieces. Telegram caps
// messages at 4096 characters; summaries are delivered in pieces of at most
// DefaultMaxLength characters plus a short ordering indicator, split on
// paragraph and sentence boundaries where possible.
package chunk

import (
	"fmt"
	"strings"
)

// DefaultMaxLength is the per-piece character budget before the part
// indicator is added.
const DefaultMaxLength = 1900

// indicatorReserve is the space held back from each piece for the
// "[Part i/N]" indicator line.
const indicatorReserve = 15

// Split breaks text into ordered pieces no longer than maxLength characters
// each (before the indicator). Text that already fits is returned as a
// single piece with no indicator. When more than one piece results, every
// piece is prefixed with a "[Part i/N]" line. Lengths are counted in runes
// so multi-byte text is not over-split.
func Split(text string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if runeLen(text) <= maxLength {
		return []string{text}
	}

	budget := maxLength - indicatorReserve
	if budget < 1 {
		budget = maxLength
	}

	var chunks []string
	var current string

	flush := func() {
		if current != "" {
			chunks = append(chunks, current)
			current = ""
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		if para == "" {
			continue
		}

		candidate := para
		if current != "" {
			candidate = current + "\n\n" + para
		}
		if runeLen(candidate) <= budget {
			current = candidate
			continue
		}

		flush()

		// Paragraph too large on its own: hard-split it.
		for runeLen(para) > budget {
			head, rest := hardSplit(para, budget)
			chunks = append(chunks, head)
			para = rest
		}
		current = para
	}
	flush()

	if len(chunks) == 0 {
		// Input was only blank lines; collapse it to one empty piece.
		return []string{strings.TrimSpace(text)}
	}
	if len(chunks) == 1 {
		return chunks
	}

	total := len(chunks)
	parts := make([]string, total)
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("[Part %d/%d]\n%s", i+1, total, c)
	}
	return parts
}

// hardSplit cuts s at the last sentence terminator before limit runes,
// falling back to the last space, then to the exact rune boundary.
func hardSplit(s string, limit int) (head, rest string) {
	runes := []rune(s)
	if len(runes) <= limit {
		return s, ""
	}
	window := string(runes[:limit])

	if idx := strings.LastIndex(window, ". "); idx > 0 {
		cut := len([]rune(window[:idx+1]))
		return strings.TrimRight(string(runes[:cut]), " "), strings.TrimLeft(string(runes[cut:]), " ")
	}
	if idx := strings.LastIndex(window, " "); idx > 0 {
		cut := len([]rune(window[:idx]))
		return string(runes[:cut]), strings.TrimLeft(string(runes[cut:]), " ")
	}
	return window, string(runes[limit:])
}

func runeLen(s string) int {
	return len([]rune(s))
}
