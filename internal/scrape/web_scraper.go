package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	maxPageBytes = 512 << 10
	maxPageRunes = 16000
	fetchTimeout = 30 * time.Second
	userAgent    = "RecapBot/1.0 (+link preview)"
)

// LinkSummarizer digests a fetched page's text into a summary and key
// points.
type LinkSummarizer interface {
	SummarizeLink(ctx context.Context, url, pageText string) (summary string, keyPoints []string, err error)
}

// WebScraper fetches a linked page over HTTP, reduces it to plain text, and
// asks the LLM for a digest. It handles the common case of article-style
// pages; script-rendered sites come back mostly empty and produce a thin
// digest, which is acceptable for enrichment.
type WebScraper struct {
	client *http.Client
	llm    LinkSummarizer
	logger *slog.Logger
}

// NewWebScraper creates a WebScraper using the given LLM backend.
func NewWebScraper(llm LinkSummarizer, logger *slog.Logger) *WebScraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebScraper{
		client: &http.Client{Timeout: fetchTimeout},
		llm:    llm,
		logger: logger.With("component", "web_scraper"),
	}
}

// Scrape fetches the URL and returns its LLM digest.
func (w *WebScraper) Scrape(ctx context.Context, url string) (Result, error) {
	pageText, err := w.fetch(ctx, url)
	if err != nil {
		return Result{}, err
	}
	if pageText == "" {
		return Result{}, fmt.Errorf("page at %s had no extractable text", url)
	}

	summary, keyPoints, err := w.llm.SummarizeLink(ctx, url, pageText)
	if err != nil {
		return Result{}, err
	}
	return Result{Summary: summary, KeyPoints: keyPoints}, nil
}

func (w *WebScraper) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch of %s returned status %d", url, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		return "", fmt.Errorf("unsupported content type %q at %s", contentType, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", url, err)
	}

	text := string(body)
	if strings.Contains(contentType, "text/html") {
		text = extractText(text)
	}
	return truncateRunes(strings.TrimSpace(text), maxPageRunes), nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)\b.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// extractText strips markup from an HTML document. Regex-based stripping is
// rough but sufficient for feeding an LLM; structure does not need to
// survive, only the words.
func extractText(html string) string {
	text := scriptRe.ReplaceAllString(html, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'").Replace(text)
	return spaceRe.ReplaceAllString(text, " ")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
