// Package gemini implements the LLM summarizer on top of Google's Gemini
// API. The rest of the application treats it as a black box: transcript in,
// summary text out, or an error.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/chatrecap/chatrecap/internal/config"
)

// Summarizer generates a digest of a conversation transcript. All upstream
// failures (auth, quota, network, malformed response) surface as a plain
// error; callers phrase the user-facing message themselves.
type Summarizer interface {
	Summarize(ctx context.Context, transcript, channelName string, windowStart time.Time, hours int) (string, error)
}

// LinkSummarizer digests a web page's text into a short summary and key
// points, used to enrich stored messages that carry links.
type LinkSummarizer interface {
	SummarizeLink(ctx context.Context, url, pageText string) (summary string, keyPoints []string, err error)
}

// Client is the full Gemini surface the application uses.
type Client interface {
	Summarizer
	LinkSummarizer
}

type sdkClient struct {
	genaiClient   *genai.Client
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	linkConfig    *genai.GenerateContentConfig
	modelName     string
	maxRetries    int
	retryDelay    time.Duration
}

// NewClient creates a Gemini-backed Client with the provided
// configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	baseCfg := &genai.GenerateContentConfig{
		Temperature: &cfg.Temperature,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: SummarySystemInstruction}},
		},
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	linkCfg := &genai.GenerateContentConfig{
		Temperature: &cfg.Temperature,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: LinkSystemInstruction}},
		},
		SafetySettings: baseCfg.SafetySettings,
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized", "model", cfg.ModelName)
	return &sdkClient{
		genaiClient:   gi,
		log:           logger,
		contentConfig: baseCfg,
		linkConfig:    linkCfg,
		modelName:     cfg.ModelName,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

func (c *sdkClient) Summarize(ctx context.Context, transcript, channelName string, windowStart time.Time, hours int) (string, error) {
	c.log.DebugContext(ctx, "Generating summary", "channel", channelName, "hours", hours, "transcript_len", len(transcript))

	prompt := fmt.Sprintf(SummaryPromptTemplate,
		channelName, hours, windowStart.UTC().Format("2006-01-02 15:04"), transcript)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := c.generateContentWithRetries(ctx, contents, c.contentConfig)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini summary generation failed", "channel", channelName, "error", err)
		return "", fmt.Errorf("gemini summary generation failed: %w", err)
	}

	return c.extractTextFromResponse(ctx, resp)
}

func (c *sdkClient) SummarizeLink(ctx context.Context, url, pageText string) (string, []string, error) {
	c.log.DebugContext(ctx, "Generating link digest", "url", url, "page_len", len(pageText))

	prompt := fmt.Sprintf(LinkPromptTemplate, url, pageText)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := c.generateContentWithRetries(ctx, contents, c.linkConfig)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini link digest failed", "url", url, "error", err)
		return "", nil, fmt.Errorf("gemini link digest failed: %w", err)
	}

	text, err := c.extractTextFromResponse(ctx, resp)
	if err != nil {
		return "", nil, err
	}

	summary, keyPoints := parseLinkDigest(text)
	return summary, keyPoints, nil
}

// parseLinkDigest splits the model's response into the leading summary
// paragraph and the "- " bullet lines that follow it.
func parseLinkDigest(text string) (string, []string) {
	var summaryLines, keyPoints []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "- "); ok {
			keyPoints = append(keyPoints, strings.TrimSpace(rest))
			continue
		}
		if len(keyPoints) == 0 {
			summaryLines = append(summaryLines, line)
		}
	}
	return strings.Join(summaryLines, " "), keyPoints
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, c.modelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry", "attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) {
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call", "delay", c.retryDelay, "code", apiErr.Code)
				select {
				case <-time.After(c.retryDelay):
					continue
				case <-ctx.Done():
					return nil, fmt.Errorf("gemini API call cancelled while waiting to retry: %w", ctx.Err())
				}
			}
			return nil, fmt.Errorf("gemini API call failed after %d retries (APIError code %d): %w", c.maxRetries, apiErr.Code, err)
		}

		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, err
}

func (c *sdkClient) extractTextFromResponse(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "reason", reasonMsg)
		return "", fmt.Errorf("summary blocked by safety filter: %s", reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "finish_reason", finishReason)
		return "", fmt.Errorf("summary returned no content, finish reason: %s", finishReason)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("summary returned empty text")
	}
	return text, nil
}
