package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"prodtrack/internal/domain"
	"prodtrack/internal/httpx"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultBatchSize      = 40
	maxBatchConcurrency   = 4
	minConfidence         = 0.5
)

type completeFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error)

type AnthropicCategorizer struct {
	categories []string
	batchSize  int
	logger     *zap.Logger
	complete   completeFunc
}

func NewAnthropicCategorizer(apiKey, model string, categories []string, timeout time.Duration, logger *zap.Logger) *AnthropicCategorizer {
	if model == "" {
		model = defaultAnthropicModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &AnthropicCategorizer{
		categories: categories,
		batchSize:  defaultBatchSize,
		logger:     logger,
	}
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpx.NewExternalClient(timeout)),
	)
	a.complete = func(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
		return callAnthropic(ctx, client, model, systemPrompt, userPrompt, logger)
	}
	return a
}

type categoryDecision struct {
	ID         int64   `json:"id"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

func (a *AnthropicCategorizer) Categorize(ctx context.Context, stoppages []domain.StoppageEvent) (map[int64]string, Usage, error) {
	if len(stoppages) == 0 {
		return map[int64]string{}, Usage{}, nil
	}

	var batches [][]domain.StoppageEvent
	for start := 0; start < len(stoppages); start += a.batchSize {
		end := min(start+a.batchSize, len(stoppages))
		batches = append(batches, stoppages[start:end])
	}

	type batchResult struct {
		decisions []categoryDecision
		usage     Usage
		err       error
	}
	results := make([]batchResult, len(batches))
	sem := make(chan struct{}, batchConcurrencyLimit(len(batches)))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(idx int, batch []domain.StoppageEvent) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			systemPrompt, userPrompt := buildCategoryPrompts(a.categories, batch)
			a.logger.Info("llm stoppage-categorize", zap.Int("items", len(batch)), zap.Int("batch", idx))
			text, usage, err := a.complete(ctx, systemPrompt, userPrompt)
			if err != nil {
				results[idx] = batchResult{usage: usage, err: err}
				return
			}
			decisions, err := parseCategoryResponse(text)
			results[idx] = batchResult{decisions: decisions, usage: usage, err: err}
		}(i, batch)
	}
	wg.Wait()

	asked := make(map[int64]bool, len(stoppages))
	for _, ev := range stoppages {
		asked[ev.ID] = true
	}
	out := make(map[int64]string, len(stoppages))
	var total Usage
	var errs []error
	for idx, r := range results {
		total.Add(r.usage)
		if r.err != nil {
			a.logger.Warn("llm stoppage-categorize batch failed", zap.Int("batch", idx), zap.Error(r.err))
			errs = append(errs, fmt.Errorf("batch %d: %w", idx, r.err))
			continue
		}
		for _, d := range r.decisions {
			category := canonicalCategory(a.categories, d.Category)
			if !asked[d.ID] || category == "" || d.Confidence < minConfidence {
				continue
			}
			out[d.ID] = category
		}
	}
	return out, total, errors.Join(errs...)
}

func batchConcurrencyLimit(total int) int {
	if total < 1 {
		return 1
	}
	return min(total, maxBatchConcurrency)
}

func buildCategoryPrompts(categories []string, batch []domain.StoppageEvent) (string, string) {
	var cats strings.Builder
	for _, c := range categories {
		fmt.Fprintf(&cats, "- %s\n", c)
	}
	systemPrompt := fmt.Sprintf(`You classify shop-floor downtime events for a manufacturing plant.
Each event has a free-text reason written by a line operator, usually in Portuguese.
Assign every event exactly one category from this list, spelled exactly as shown:
%s
Respond with only a JSON array, one object per event:
[{"id": <event id>, "category": "<category>", "confidence": <0.0-1.0>}]
Use a low confidence when the reason is vague.`, cats.String())

	var items strings.Builder
	for _, ev := range batch {
		fmt.Fprintf(&items, "- id=%d duration=%dmin reason=%q\n", ev.ID, ev.DurationMinutes, ev.Reason)
	}
	userPrompt := "Events:\n" + items.String()
	return systemPrompt, userPrompt
}

func parseCategoryResponse(responseText string) ([]categoryDecision, error) {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = strings.TrimSpace(responseText)

	var decisions []categoryDecision
	if err := json.Unmarshal([]byte(responseText), &decisions); err != nil {
		return nil, fmt.Errorf("parsing LLM category response: %w (response: %s)", err, responseText)
	}
	return decisions, nil
}

func callAnthropic(ctx context.Context, client anthropic.Client, model, systemPrompt, userPrompt string, logger *zap.Logger) (string, Usage, error) {
	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("anthropic API error: %w", err)
	}
	usage := Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			logger.Debug("llm anthropic response",
				zap.Int("size", len(block.Text)),
				zap.Int64("tokens_in", usage.InputTokens),
				zap.Int64("tokens_out", usage.OutputTokens),
				zap.Int64("cache_read", usage.CacheReadInputTokens),
			)
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}
