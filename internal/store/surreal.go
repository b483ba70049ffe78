package store

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/surrealdb/surrealdb.go"

	"github.com/kevinmichaelchen/star-tidy/internal/models"
)

type SurrealOptions struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// Surreal stores run history in SurrealDB.
type Surreal struct {
	db *sdk.DB
}

func OpenSurreal(ctx context.Context, opts SurrealOptions) (*Surreal, error) {
	db, err := sdk.FromEndpointURLString(ctx, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, sdk.Auth{
		Namespace: opts.Namespace,
		Database:  opts.Database,
		Username:  opts.Username,
		Password:  opts.Password,
	}); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("signing in: %w", err)
	}

	if err := db.Use(ctx, opts.Namespace, opts.Database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("selecting ns/db: %w", err)
	}

	s := &Surreal{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Surreal) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

func (s *Surreal) initSchema(ctx context.Context) error {
	schema := `
DEFINE TABLE IF NOT EXISTS run SCHEMAFULL;

DEFINE FIELD IF NOT EXISTS run_id      ON TABLE run TYPE string;
DEFINE FIELD IF NOT EXISTS mode        ON TABLE run TYPE string;
DEFINE FIELD IF NOT EXISTS dry_run     ON TABLE run TYPE bool;
DEFINE FIELD IF NOT EXISTS user        ON TABLE run TYPE string;
DEFINE FIELD IF NOT EXISTS started_at  ON TABLE run TYPE string;
DEFINE FIELD IF NOT EXISTS finished_at ON TABLE run TYPE string;
DEFINE FIELD IF NOT EXISTS starred     ON TABLE run TYPE int;
DEFINE FIELD IF NOT EXISTS excluded    ON TABLE run TYPE int;
DEFINE FIELD IF NOT EXISTS classified  ON TABLE run TYPE int;
DEFINE FIELD IF NOT EXISTS categories  ON TABLE run TYPE int;
DEFINE FIELD IF NOT EXISTS successful  ON TABLE run TYPE int;
DEFINE FIELD IF NOT EXISTS failed      ON TABLE run TYPE int;
DEFINE FIELD IF NOT EXISTS total_repos ON TABLE run TYPE int;
DEFINE FIELD IF NOT EXISTS results     ON TABLE run FLEXIBLE TYPE array<object>;

DEFINE INDEX IF NOT EXISTS idx_run_started_at ON TABLE run FIELDS started_at;

DEFINE TABLE IF NOT EXISTS classification SCHEMALESS;
DEFINE INDEX IF NOT EXISTS idx_classification_run ON TABLE classification FIELDS run_id, full_name UNIQUE;
`
	if _, err := sdk.Query[any](ctx, s.db, schema, nil); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// surrealRun mirrors the run table. Times are stored as RFC 3339 strings.
type surrealRun struct {
	RunID      string        `json:"run_id"`
	Mode       string        `json:"mode"`
	DryRun     bool          `json:"dry_run"`
	User       string        `json:"user"`
	StartedAt  string        `json:"started_at"`
	FinishedAt string        `json:"finished_at"`
	Starred    int           `json:"starred"`
	Excluded   int           `json:"excluded"`
	Classified int           `json:"classified"`
	Categories int           `json:"categories"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	TotalRepos int           `json:"total_repos"`
	Results    []CategoryRow `json:"results"`
}

func (r surrealRun) run() Run {
	started, _ := time.Parse(time.RFC3339Nano, r.StartedAt)
	finished, _ := time.Parse(time.RFC3339Nano, r.FinishedAt)
	return Run{
		ID:         r.RunID,
		Mode:       r.Mode,
		DryRun:     r.DryRun,
		User:       r.User,
		StartedAt:  started,
		FinishedAt: finished,
		Starred:    r.Starred,
		Excluded:   r.Excluded,
		Classified: r.Classified,
		Categories: r.Categories,
		Successful: r.Successful,
		Failed:     r.Failed,
		TotalRepos: r.TotalRepos,
	}
}

func (s *Surreal) RecordRun(ctx context.Context, report models.Report, classification map[string]models.ClassificationResult) error {
	run := runFromReport(report)
	rows := categoryRows(report)

	results := make([]map[string]any, len(rows))
	for i, row := range rows {
		results[i] = map[string]any{
			"category":    row.Category,
			"action":      row.Action,
			"success":     row.Success,
			"list_id":     row.ListID,
			"repos":       row.Repos,
			"description": row.Description,
			"error":       row.Error,
		}
	}

	data := map[string]any{
		"run_id":      run.ID,
		"mode":        run.Mode,
		"dry_run":     run.DryRun,
		"user":        run.User,
		"started_at":  run.StartedAt.Format(time.RFC3339Nano),
		"finished_at": run.FinishedAt.Format(time.RFC3339Nano),
		"starred":     run.Starred,
		"excluded":    run.Excluded,
		"classified":  run.Classified,
		"categories":  run.Categories,
		"successful":  run.Successful,
		"failed":      run.Failed,
		"total_repos": run.TotalRepos,
		"results":     results,
	}

	if _, err := sdk.Query[any](ctx, s.db,
		`UPSERT type::thing("run", $id) CONTENT $data`,
		map[string]any{"id": run.ID, "data": data},
	); err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}

	if len(classification) == 0 {
		return nil
	}
	records := make([]map[string]any, 0, len(classification))
	for name, c := range classification {
		records = append(records, map[string]any{
			"run_id":     run.ID,
			"full_name":  name,
			"category":   c.Category,
			"reason":     c.Reason,
			"confidence": c.Confidence,
		})
	}
	if _, err := sdk.Query[any](ctx, s.db,
		`INSERT INTO classification $records`,
		map[string]any{"records": records},
	); err != nil {
		return fmt.Errorf("recording classifications for run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Surreal) RecentRuns(ctx context.Context, n int) ([]Run, error) {
	results, err := sdk.Query[[]surrealRun](ctx, s.db,
		`SELECT * OMIT id FROM run ORDER BY started_at DESC LIMIT $n`,
		map[string]any{"n": n})
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	if len(*results) == 0 {
		return nil, nil
	}
	var runs []Run
	for _, r := range (*results)[0].Result {
		runs = append(runs, r.run())
	}
	return runs, nil
}

func (s *Surreal) CategoryBreakdown(ctx context.Context, runID string) ([]CategoryRow, error) {
	results, err := sdk.Query[[]surrealRun](ctx, s.db,
		`SELECT * OMIT id FROM run WHERE run_id = $run_id`,
		map[string]any{"run_id": runID})
	if err != nil {
		return nil, fmt.Errorf("querying categories for run %s: %w", runID, err)
	}
	if len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return (*results)[0].Result[0].Results, nil
}
