// Package store records finished pipeline runs so past results can be
// reviewed with the history command. Nothing in a run reads this data back.
package store

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kevinmichaelchen/star-tidy/internal/config"
	"github.com/kevinmichaelchen/star-tidy/internal/models"
)

// Run is the summary row of one recorded run.
type Run struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"`
	DryRun     bool      `json:"dry_run"`
	User       string    `json:"user"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Starred    int       `json:"starred"`
	Excluded   int       `json:"excluded"`
	Classified int       `json:"classified"`
	Categories int       `json:"categories"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	TotalRepos int       `json:"total_repos"`
}

// CategoryRow is the outcome of one category within a run.
type CategoryRow struct {
	Category    string `json:"category"`
	Action      string `json:"action"`
	Success     bool   `json:"success"`
	ListID      string `json:"list_id"`
	Repos       int    `json:"repos"`
	Description string `json:"description"`
	Error       string `json:"error"`
}

// Recorder persists run reports.
type Recorder interface {
	RecordRun(ctx context.Context, report models.Report, classification map[string]models.ClassificationResult) error
	RecentRuns(ctx context.Context, n int) ([]Run, error)
	CategoryBreakdown(ctx context.Context, runID string) ([]CategoryRow, error)
	Close(ctx context.Context) error
}

// Open picks the history backend from cfg: SurrealDB when a URL is
// configured, otherwise SQLite at cfg.HistoryPath.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (Recorder, error) {
	if cfg.SurrealURL != "" {
		logger.Debug("using SurrealDB run history", zap.String("url", cfg.SurrealURL))
		return OpenSurreal(ctx, SurrealOptions{
			URL:       cfg.SurrealURL,
			Namespace: cfg.SurrealNS,
			Database:  cfg.SurrealDB,
			Username:  cfg.SurrealUser,
			Password:  cfg.SurrealPass,
		})
	}
	logger.Debug("using SQLite run history", zap.String("path", cfg.HistoryPath))
	return OpenSQLite(cfg.HistoryPath)
}

// Nop discards everything. It backs --no-history and a history store that
// failed to open.
type Nop struct{}

func (Nop) RecordRun(context.Context, models.Report, map[string]models.ClassificationResult) error {
	return nil
}
func (Nop) RecentRuns(context.Context, int) ([]Run, error)                  { return nil, nil }
func (Nop) CategoryBreakdown(context.Context, string) ([]CategoryRow, error) { return nil, nil }
func (Nop) Close(context.Context) error                                     { return nil }

func runFromReport(r models.Report) Run {
	return Run{
		ID:         r.RunID,
		Mode:       string(r.Mode),
		DryRun:     r.DryRun,
		User:       r.User,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
		Starred:    r.Starred,
		Excluded:   r.Excluded,
		Classified: r.Classified,
		Categories: r.Categories,
		Successful: r.Successful,
		Failed:     r.Failed,
		TotalRepos: r.TotalRepos,
	}
}

// categoryRows flattens report results, sorted by category name.
func categoryRows(r models.Report) []CategoryRow {
	rows := make([]CategoryRow, 0, len(r.Results))
	for name, res := range r.Results {
		rows = append(rows, CategoryRow{
			Category:    name,
			Action:      res.Action,
			Success:     res.Success,
			ListID:      res.ListID,
			Repos:       res.RepoCount(),
			Description: res.EnhancedDescription,
			Error:       res.Error,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Category < rows[j].Category })
	return rows
}
