package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/kevinmichaelchen/star-tidy/internal/config"
	"github.com/kevinmichaelchen/star-tidy/internal/llm"
	"github.com/kevinmichaelchen/star-tidy/internal/models"
)

// DecisionKind says how a list description was arrived at.
type DecisionKind string

const (
	AutoComplete DecisionKind = "auto_complete"
	Enhance      DecisionKind = "enhance"
	LeaveAsIs    DecisionKind = "leave_as_is"
)

type SummaryDecision struct {
	Kind        DecisionKind
	Description string
}

// Describer decides list descriptions from summary options, generating or
// revising text with the inference gateway where enabled.
type Describer struct {
	gateway llm.Gateway
	opts    config.SummaryOptions
	logger  *zap.Logger
}

func NewDescriber(gateway llm.Gateway, opts config.SummaryOptions, logger *zap.Logger) *Describer {
	return &Describer{gateway: gateway, opts: opts, logger: logger}
}

// Decide picks the description for group given the existing list, if any.
func (d *Describer) Decide(ctx context.Context, group CategoryGroup, existing *models.RemoteList) SummaryDecision {
	switch {
	case existing == nil:
		return SummaryDecision{Kind: AutoComplete, Description: d.Generate(ctx, group)}
	case existing.Description == "" && d.opts.AutoComplete:
		d.logger.Info("auto-completing description", zap.String("category", group.Name))
		return SummaryDecision{Kind: AutoComplete, Description: d.Generate(ctx, group)}
	case existing.Description != "" && d.opts.EnhanceExisting:
		return SummaryDecision{Kind: Enhance, Description: d.enhance(ctx, existing.Description, group)}
	default:
		return SummaryDecision{Kind: LeaveAsIs, Description: existing.Description}
	}
}

// Generate writes a fresh description, falling back to BasicDescription
// when AI summaries are off or the gateway fails.
func (d *Describer) Generate(ctx context.Context, group CategoryGroup) string {
	if !d.opts.UseAISummary {
		return BasicDescription(group.Name, group.Repos, d.opts.IncludeStats)
	}
	text, err := d.gateway.Complete(ctx, summaryPrompt(group))
	if err != nil {
		d.logger.Warn("failed to generate AI summary", zap.String("category", group.Name), zap.Error(err))
		return BasicDescription(group.Name, group.Repos, d.opts.IncludeStats)
	}
	return strings.TrimSpace(text)
}

// enhance revises an existing description. The original is kept when AI
// summaries are off or the gateway fails.
func (d *Describer) enhance(ctx context.Context, current string, group CategoryGroup) string {
	if !d.opts.UseAISummary {
		return current
	}
	text, err := d.gateway.Complete(ctx, enhancePrompt(current, group))
	if err != nil {
		d.logger.Warn("failed to enhance description", zap.String("category", group.Name), zap.Error(err))
		return current
	}
	enhanced := strings.TrimSpace(text)
	if enhanced == "" {
		return current
	}
	if enhanced != current {
		d.logger.Info("enhanced description", zap.String("category", group.Name))
	}
	return enhanced
}

// BasicDescription is the deterministic description used without AI.
func BasicDescription(category string, repos []models.Repository, includeStats bool) string {
	stats := GroupStats(repos)

	var b strings.Builder
	fmt.Fprintf(&b, "Auto-categorized %s repositories (%d repos)", category, stats.Count)
	if len(stats.TopLanguages) > 0 {
		b.WriteString(" - Main languages: " + strings.Join(stats.TopLanguages, ", "))
	}
	if includeStats && stats.TotalStars > 0 {
		b.WriteString(" - Total stars: " + humanize.Comma(int64(stats.TotalStars)))
	}
	return b.String()
}

const summarySamples = 5

func summaryPrompt(group CategoryGroup) string {
	samples := group.Repos
	if len(samples) > summarySamples {
		samples = samples[:summarySamples]
	}

	var lines []string
	for _, r := range samples {
		lines = append(lines, fmt.Sprintf("- %s: %s (language: %s, topics: %s, stars: %d)",
			r.FullName, deref(r.Description, "no description"), deref(r.Language, "unknown"),
			strings.Join(r.Topics, ", "), r.StargazersCount))
	}

	return fmt.Sprintf(`Create a concise and informative description for a GitHub star list named %q.

Repository samples from this category:
%s

Total repositories in this category: %d

Generate a description that:
1. Explains what this category contains
2. Highlights the main technologies/languages
3. Mentions the purpose or use case
4. Keeps it under 100 words
5. Sounds professional and helpful

Description:`, group.Name, strings.Join(lines, "\n"), len(group.Repos))
}

func enhancePrompt(current string, group CategoryGroup) string {
	stats := GroupStats(group.Repos)
	return fmt.Sprintf(`Enhance this existing GitHub star list description with updated information:

Current description: %q
Category: %s
Repository count: %d
Main languages: %s
Total stars: %s
Common topics: %s

Enhance the description by:
1. Keeping the original tone and style
2. Adding relevant statistics if missing
3. Updating outdated information
4. Ensuring accuracy and completeness
5. Keeping it concise and professional

Enhanced description:`, current, group.Name, stats.Count,
		strings.Join(stats.TopLanguages, ", "), humanize.Comma(int64(stats.TotalStars)),
		strings.Join(stats.TopTopics, ", "))
}

func deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
