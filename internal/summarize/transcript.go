package summarize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chatrecap/chatrecap/internal/database"
)

// transcript is the enriched text block handed to the summarizer, together
// with the exact message count it represents and the distinct non-bot
// author names that appear in it.
type transcript struct {
	text         string
	messageCount int
	activeUsers  []string
}

// buildTranscript renders the window's messages into a transcript. Command
// messages are dropped; messages carrying scraped link content get that
// summary (and key points, when present) folded in directly after the
// message body, so already-scraped links are not summarized again.
func buildTranscript(messages []*database.Message) transcript {
	var sb strings.Builder
	authors := make(map[string]struct{})
	count := 0

	for _, m := range messages {
		if m == nil || m.IsCommand {
			continue
		}
		count++
		if !m.IsBot && m.AuthorName != "" {
			authors[m.AuthorName] = struct{}{}
		}

		name := m.AuthorName
		if m.IsBot {
			name = name + " (bot)"
		}
		fmt.Fprintf(&sb, "[%s] %s: %s\n", m.CreatedAt.UTC().Format("2006-01-02 15:04"), name, m.Content)

		if m.ScrapedSummary != "" {
			fmt.Fprintf(&sb, "  [linked content from %s: %s]\n", m.ScrapedURL, m.ScrapedSummary)
			if len(m.ScrapedKeyPoints) > 0 {
				fmt.Fprintf(&sb, "  [key points: %s]\n", strings.Join(m.ScrapedKeyPoints, "; "))
			}
		}
	}

	users := make([]string, 0, len(authors))
	for name := range authors {
		users = append(users, name)
	}
	sort.Strings(users)

	return transcript{
		text:         sb.String(),
		messageCount: count,
		activeUsers:  users,
	}
}
