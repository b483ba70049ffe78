package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kevinmichaelchen/star-tidy/internal/classify"
	"github.com/kevinmichaelchen/star-tidy/internal/config"
	"github.com/kevinmichaelchen/star-tidy/internal/github"
	"github.com/kevinmichaelchen/star-tidy/internal/llm"
	"github.com/kevinmichaelchen/star-tidy/internal/models"
	"github.com/kevinmichaelchen/star-tidy/internal/reconcile"
)

// Host is everything the pipeline needs from the repository host.
type Host interface {
	reconcile.Host
	Authenticate(ctx context.Context) (*github.User, error)
	ListStarred(ctx context.Context, user string) ([]models.Repository, error)
	ListNamedLists(ctx context.Context) ([]models.RemoteList, error)
}

// Recorder receives the finished report.
type Recorder interface {
	RecordRun(ctx context.Context, report models.Report, classification map[string]models.ClassificationResult) error
}

// Controller runs the five pipeline stages in order:
// initialize, fetch starred, mode decision, classification, reconcile.
type Controller struct {
	cfg      config.Config
	host     Host
	gateway  llm.Gateway
	recorder Recorder
	out      io.Writer
	logger   *zap.Logger
	now      func() time.Time
}

// New builds a Controller. Progress lines are written to out.
func New(cfg config.Config, host Host, gateway llm.Gateway, recorder Recorder, out io.Writer, logger *zap.Logger) *Controller {
	return &Controller{
		cfg:      cfg,
		host:     host,
		gateway:  gateway,
		recorder: recorder,
		out:      out,
		logger:   logger,
		now:      time.Now,
	}
}

// run carries state between stages for one invocation.
type run struct {
	user           string
	starred        []models.Repository
	candidates     []models.Repository
	excluded       []models.Repository
	scope          classify.Scope
	classification map[string]models.ClassificationResult
	results        map[string]models.OperationResult
}

// Run executes the pipeline. An error is returned only when the run cannot
// proceed at all: invalid configuration, failed authentication, or a failed
// starred-repository fetch. Per-repository and per-category failures are
// reported in the returned Report instead.
func (c *Controller) Run(ctx context.Context) (*models.Report, error) {
	report := &models.Report{
		RunID:     uuid.NewString(),
		Mode:      c.cfg.Mode,
		DryRun:    c.cfg.DryRun,
		StartedAt: c.now(),
	}
	logger := c.logger.With(zap.String("run_id", report.RunID))

	var r run
	if err := c.initialize(ctx, logger, &r); err != nil {
		return nil, err
	}
	if err := c.fetchStarred(ctx, logger, &r); err != nil {
		return nil, err
	}
	c.decideMode(ctx, logger, &r)
	c.classifyBatch(ctx, logger, &r)
	c.reconcile(ctx, logger, &r)

	report.User = r.user
	report.Starred = len(r.starred)
	report.Excluded = len(r.excluded)
	report.Classified = len(r.classification)
	report.Results = r.results
	report.FinishedAt = c.now()
	report.Tally()

	logger.Info("pipeline complete",
		zap.Int("categories", report.Categories),
		zap.Int("successful", report.Successful),
		zap.Int("failed", report.Failed),
		zap.Int("total_repos", report.TotalRepos),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)

	if err := c.recorder.RecordRun(ctx, *report, r.classification); err != nil {
		logger.Warn("failed to record run history", zap.Error(err))
	}
	return report, nil
}

func (c *Controller) initialize(ctx context.Context, logger *zap.Logger, r *run) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	user, err := c.host.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authenticating with GitHub: %w", err)
	}
	r.user = user.Login
	logger.Info("authenticated", zap.String("user", user.Login))
	return nil
}

func (c *Controller) fetchStarred(ctx context.Context, logger *zap.Logger, r *run) error {
	fmt.Fprintln(c.out, "Fetching starred repositories...")
	// Lists belong to the token holder, so only their own stars are fetched.
	repos, err := c.host.ListStarred(ctx, "")
	if err != nil {
		return fmt.Errorf("fetching starred repositories: %w", err)
	}
	r.starred = repos
	r.candidates, r.excluded = classify.Filter(repos, c.cfg.ExcludeSet())
	fmt.Fprintf(c.out, "Fetched %d starred repos (%d excluded)\n", len(repos), len(r.excluded))
	logger.Debug("fetched starred repositories", zap.Int("count", len(repos)), zap.Int("excluded", len(r.excluded)))
	return nil
}

// decideMode fixes the classification scope. Only existing-lists mode reads
// remote lists here; a failed read falls back to an unconstrained scope.
func (c *Controller) decideMode(ctx context.Context, logger *zap.Logger, r *run) {
	r.scope = classify.Scope{Mode: c.cfg.Mode}
	if c.cfg.Mode != models.ModeExistingLists {
		return
	}

	lists, err := c.host.ListNamedLists(ctx)
	if err != nil {
		logger.Warn("failed to fetch existing lists, classifying without them", zap.Error(err))
		return
	}
	for _, l := range lists {
		r.scope.Categories = append(r.scope.Categories, l.Name)
	}
	logger.Info("using existing lists as categories", zap.Strings("categories", r.scope.Categories))
}

func (c *Controller) classifyBatch(ctx context.Context, logger *zap.Logger, r *run) {
	fmt.Fprintf(c.out, "Classifying %d repos with %s...\n", len(r.candidates), c.cfg.AIModel)
	classifier := classify.NewClassifier(c.gateway, logger)
	r.classification = classifier.ClassifyAll(ctx, r.candidates, r.scope, nil, c.cfg.Concurrency)
}

// reconcile reads list state afresh, independent of decideMode. Without it a
// live run would create duplicates of lists it could not see, so every
// category is failed instead. A dry run proceeds against empty state.
func (c *Controller) reconcile(ctx context.Context, logger *zap.Logger, r *run) {
	existing, err := c.host.ListNamedLists(ctx)
	if err != nil {
		if !c.cfg.DryRun {
			logger.Error("failed to fetch existing lists", zap.Error(err))
			fmt.Fprintln(c.out, "WARN: existing star lists are unavailable; no lists were created or updated")
			r.results = reconcile.Unavailable(r.classification, r.candidates, err)
			return
		}
		logger.Warn("failed to fetch existing lists, dry run continues without them", zap.Error(err))
	}

	if c.cfg.DryRun {
		fmt.Fprintln(c.out, "DRY RUN: no changes will be made")
	}
	fmt.Fprintln(c.out, "Reconciling star lists...")

	describer := reconcile.NewDescriber(c.gateway, c.cfg.SummaryOptions, logger)
	reconciler := reconcile.NewReconciler(c.host, describer, reconcile.Options{
		DryRun:      c.cfg.DryRun,
		Concurrency: c.cfg.Concurrency,
	}, logger)
	r.results = reconciler.Reconcile(ctx, r.classification, r.candidates, existing)
}
