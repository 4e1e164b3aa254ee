package chunk

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var indicatorRe = regexp.MustCompile(`^\[Part (\d+)/(\d+)\]\n`)

func stripIndicator(t *testing.T, piece string) string {
	t.Helper()
	return indicatorRe.ReplaceAllString(piece, "")
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestSplitShortTextUnmodified(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"single line", "a short summary"},
		{"exactly at limit", strings.Repeat("x", DefaultMaxLength)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pieces := Split(tt.text, DefaultMaxLength)
			require.Len(t, pieces, 1)
			assert.Equal(t, tt.text, pieces[0])
			assert.False(t, indicatorRe.MatchString(pieces[0]))
		})
	}
}

func TestSplitOneCharOverLimit(t *testing.T) {
	text := strings.Repeat("x", DefaultMaxLength+1)
	pieces := Split(text, DefaultMaxLength)

	require.Len(t, pieces, 2)
	for i, p := range pieces {
		m := indicatorRe.FindStringSubmatch(p)
		require.NotNil(t, m, "piece %d missing indicator", i)
		assert.Equal(t, fmt.Sprintf("%d", i+1), m[1])
		assert.Equal(t, "2", m[2])
	}
}

func TestSplitRespectsParagraphBoundaries(t *testing.T) {
	para := strings.TrimSpace(strings.Repeat("word ", 100)) // ~500 chars
	text := strings.Join([]string{para, para, para, para, para, para}, "\n\n")
	pieces := Split(text, DefaultMaxLength)

	require.Greater(t, len(pieces), 1)
	for _, p := range pieces {
		body := stripIndicator(t, p)
		assert.LessOrEqual(t, len([]rune(p)), DefaultMaxLength+indicatorReserve)
		// Pieces break on paragraph boundaries, so no piece starts or
		// ends mid-word.
		assert.Equal(t, strings.TrimSpace(body), body)
	}
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	sentence := "This is a complete sentence about the conversation. "
	text := strings.Repeat(sentence, 80) // single paragraph, ~4200 chars
	pieces := Split(text, DefaultMaxLength)

	require.Greater(t, len(pieces), 1)
	for i, p := range pieces {
		body := stripIndicator(t, p)
		if i < len(pieces)-1 {
			assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "."),
				"piece %d should end at a sentence terminator: %q", i, body[len(body)-20:])
		}
	}
}

func TestSplitNoWhitespaceHardBoundary(t *testing.T) {
	text := strings.Repeat("a", 5000)
	pieces := Split(text, DefaultMaxLength)

	require.Greater(t, len(pieces), 1)
	var rebuilt strings.Builder
	for _, p := range pieces {
		body := stripIndicator(t, p)
		assert.LessOrEqual(t, len([]rune(body)), DefaultMaxLength)
		rebuilt.WriteString(body)
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestSplitOnlyBlankLines(t *testing.T) {
	text := strings.Repeat("\n", DefaultMaxLength+10)
	pieces := Split(text, DefaultMaxLength)
	require.Len(t, pieces, 1)
	assert.Empty(t, pieces[0])
}

func TestSplitReconstructsContent(t *testing.T) {
	var paras []string
	for i := 0; i < 20; i++ {
		paras = append(paras, fmt.Sprintf("Paragraph %d: %s", i, strings.Repeat("detail ", 60)))
	}
	text := strings.Join(paras, "\n\n")
	pieces := Split(text, DefaultMaxLength)
	require.Greater(t, len(pieces), 1)

	var bodies []string
	for _, p := range pieces {
		bodies = append(bodies, stripIndicator(t, p))
	}
	assert.Equal(t, collapseWhitespace(text), collapseWhitespace(strings.Join(bodies, " ")))
}

func TestSplitIndicatorsAreConsistent(t *testing.T) {
	text := strings.Repeat("some words here. ", 500)
	pieces := Split(text, DefaultMaxLength)
	require.Greater(t, len(pieces), 1)

	total := fmt.Sprintf("%d", len(pieces))
	for i, p := range pieces {
		m := indicatorRe.FindStringSubmatch(p)
		require.NotNil(t, m)
		assert.Equal(t, fmt.Sprintf("%d", i+1), m[1])
		assert.Equal(t, total, m[2])
	}
}

func TestSplitUnicodeCountsRunes(t *testing.T) {
	text := strings.Repeat("日本語の要約テキスト ", 400) // ~4400 runes, ~13k bytes
	pieces := Split(text, DefaultMaxLength)
	require.Greater(t, len(pieces), 1)
	for _, p := range pieces {
		assert.LessOrEqual(t, len([]rune(p)), DefaultMaxLength+indicatorReserve)
	}
}

func TestSplitZeroMaxLengthUsesDefault(t *testing.T) {
	text := strings.Repeat("y", DefaultMaxLength)
	pieces := Split(text, 0)
	require.Len(t, pieces, 1)
	assert.Equal(t, text, pieces[0])
}
