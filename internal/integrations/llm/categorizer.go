// Package llm assigns downtime categories to free-text stoppage reasons,
// first from a phrase glossary and then, when configured, with a model call.
package llm

import (
	"context"
	"strings"

	"prodtrack/internal/config"
	"prodtrack/internal/domain"

	"go.uber.org/zap"
)

// Categorizer returns a category per stoppage id for the stoppages it could
// place. Stoppages it has no answer for are left out of the map.
type Categorizer interface {
	Categorize(ctx context.Context, stoppages []domain.StoppageEvent) (map[int64]string, Usage, error)
}

type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

type GlossaryCategorizer struct {
	Glossary *Glossary
}

func (c GlossaryCategorizer) Categorize(_ context.Context, stoppages []domain.StoppageEvent) (map[int64]string, Usage, error) {
	out := make(map[int64]string)
	for _, ev := range stoppages {
		if category, ok := c.Glossary.Match(ev.Reason); ok {
			out[ev.ID] = category
		}
	}
	return out, Usage{}, nil
}

// Chain asks Fallback only about the stoppages First could not place.
type Chain struct {
	First    Categorizer
	Fallback Categorizer
	Logger   *zap.Logger
}

func (c Chain) Categorize(ctx context.Context, stoppages []domain.StoppageEvent) (map[int64]string, Usage, error) {
	decided, usage, err := c.First.Categorize(ctx, stoppages)
	if err != nil {
		return nil, usage, err
	}
	if c.Fallback == nil {
		return decided, usage, nil
	}

	var rest []domain.StoppageEvent
	for _, ev := range stoppages {
		if _, ok := decided[ev.ID]; !ok && strings.TrimSpace(ev.Reason) != "" {
			rest = append(rest, ev)
		}
	}
	if len(rest) == 0 {
		return decided, usage, nil
	}
	if c.Logger != nil {
		c.Logger.Debug("categorizing stoppages with fallback", zap.Int("glossary_matches", len(decided)), zap.Int("remaining", len(rest)))
	}
	more, moreUsage, err := c.Fallback.Categorize(ctx, rest)
	usage.Add(moreUsage)
	for id, category := range more {
		decided[id] = category
	}
	return decided, usage, err
}

// New builds the categorizer the configuration asks for: the glossary
// alone, or the glossary backed by Anthropic.
func New(cfg config.Config, logger *zap.Logger) (Categorizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var glossary *Glossary
	if strings.TrimSpace(cfg.DowntimeGlossaryPath) != "" {
		g, err := LoadGlossary(cfg.DowntimeGlossaryPath)
		if err != nil {
			return nil, err
		}
		glossary = g
	}

	chain := Chain{First: GlossaryCategorizer{Glossary: glossary}, Logger: logger}
	if cfg.LLMProvider == config.ProviderAnthropic {
		chain.Fallback = NewAnthropicCategorizer(cfg.AnthropicAPIKey, cfg.LLMModel, glossary.CategoryList(), cfg.ExternalTimeout(), logger)
	}
	return chain, nil
}
