package reconcile

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kevinmichaelchen/star-tidy/internal/models"
)

// Host is the subset of the repository host used to mutate lists.
type Host interface {
	CreateList(ctx context.Context, name, description string) (*models.RemoteList, error)
	UpdateList(ctx context.Context, listID, description string) (*models.RemoteList, error)
	AddReposToList(ctx context.Context, listID string, repoIDs []int64) error
}

type Options struct {
	DryRun      bool
	Concurrency int
}

// Reconciler turns classifications into list creates and updates.
// Membership is only ever added to, never removed.
type Reconciler struct {
	host      Host
	describer *Describer
	opts      Options
	logger    *zap.Logger
}

func NewReconciler(host Host, describer *Describer, opts Options, logger *zap.Logger) *Reconciler {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Reconciler{host: host, describer: describer, opts: opts, logger: logger}
}

// Reconcile groups classified repositories and creates or updates one list
// per non-empty category. A failure in one category is recorded in its
// result and does not affect the others.
func (r *Reconciler) Reconcile(ctx context.Context, classification map[string]models.ClassificationResult, allRepos []models.Repository, existing []models.RemoteList) map[string]models.OperationResult {
	groups := Group(classification, allRepos)
	cache := newListCache(existing)

	var (
		mu      sync.Mutex
		results = make(map[string]models.OperationResult, len(groups))
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for _, group := range groups {
		if len(group.Repos) == 0 {
			continue
		}
		g.Go(func() error {
			result := r.reconcileGroup(gCtx, group, cache)
			mu.Lock()
			results[group.Name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (r *Reconciler) reconcileGroup(ctx context.Context, group CategoryGroup, cache *listCache) (result models.OperationResult) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic processing category", zap.String("category", group.Name), zap.Any("panic", p))
			result = models.OperationResult{Success: false, Error: fmt.Sprintf("panic: %v", p)}
		}
	}()

	current, exists := cache.get(group.Name)
	var existing *models.RemoteList
	if exists {
		existing = &current
	}
	decision := r.describer.Decide(ctx, group, existing)

	if r.opts.DryRun {
		names := make([]string, len(group.Repos))
		for i, repo := range group.Repos {
			names[i] = repo.FullName
		}
		r.logger.Info("DRY RUN: would create/update list",
			zap.String("category", group.Name),
			zap.Int("repos", len(group.Repos)),
			zap.String("description", decision.Description),
		)
		return models.OperationResult{
			Success:             true,
			Action:              models.ActionDryRun,
			ReposCount:          len(group.Repos),
			Repos:               names,
			EnhancedDescription: decision.Description,
		}
	}

	var err error
	if exists {
		result, err = r.update(ctx, current, decision.Description, group, cache)
	} else {
		result, err = r.create(ctx, decision.Description, group, cache)
	}
	if err != nil {
		r.logger.Error("failed to process category", zap.String("category", group.Name), zap.Error(err))
		return models.OperationResult{Success: false, Error: err.Error()}
	}
	result.EnhancedDescription = decision.Description
	return result
}

func (r *Reconciler) create(ctx context.Context, description string, group CategoryGroup, cache *listCache) (models.OperationResult, error) {
	list, err := r.host.CreateList(ctx, group.Name, description)
	if err != nil {
		return models.OperationResult{}, fmt.Errorf("creating list %q: %w", group.Name, err)
	}
	cache.put(group.Name, *list)

	if err := r.host.AddReposToList(ctx, list.ID, repoIDs(group.Repos)); err != nil {
		return models.OperationResult{}, fmt.Errorf("adding repos to list %q: %w", group.Name, err)
	}

	r.logger.Info("created star list", zap.String("category", group.Name), zap.Int("repos", len(group.Repos)))
	return models.OperationResult{
		Success:    true,
		Action:     models.ActionCreated,
		ListID:     list.ID,
		ReposAdded: len(group.Repos),
	}, nil
}

func (r *Reconciler) update(ctx context.Context, list models.RemoteList, description string, group CategoryGroup, cache *listCache) (models.OperationResult, error) {
	if description != "" && description != list.Description {
		if _, err := r.host.UpdateList(ctx, list.ID, description); err != nil {
			return models.OperationResult{}, fmt.Errorf("updating list %q: %w", group.Name, err)
		}
		list.Description = description
		cache.put(group.Name, list)
	}

	if err := r.host.AddReposToList(ctx, list.ID, repoIDs(group.Repos)); err != nil {
		return models.OperationResult{}, fmt.Errorf("adding repos to list %q: %w", group.Name, err)
	}

	r.logger.Info("updated star list", zap.String("category", group.Name), zap.Int("repos", len(group.Repos)))
	return models.OperationResult{
		Success:    true,
		Action:     models.ActionUpdated,
		ListID:     list.ID,
		ReposAdded: len(group.Repos),
	}, nil
}

// Unavailable marks every category as failed with err. It is used when the
// current list state cannot be read, since creating lists blind could
// duplicate ones that already exist.
func Unavailable(classification map[string]models.ClassificationResult, allRepos []models.Repository, err error) map[string]models.OperationResult {
	results := map[string]models.OperationResult{}
	for _, group := range Group(classification, allRepos) {
		results[group.Name] = models.OperationResult{
			Success: false,
			Error:   fmt.Sprintf("existing star lists unavailable, list not created or updated: %v", err),
		}
	}
	return results
}

func repoIDs(repos []models.Repository) []int64 {
	ids := make([]int64, len(repos))
	for i, repo := range repos {
		ids[i] = repo.ID
	}
	return ids
}

// listCache maps list names to lists for one reconcile pass. Each category
// touches only its own key.
type listCache struct {
	mu    sync.RWMutex
	lists map[string]models.RemoteList
}

func newListCache(lists []models.RemoteList) *listCache {
	c := &listCache{lists: make(map[string]models.RemoteList, len(lists))}
	for _, l := range lists {
		c.lists[l.Name] = l
	}
	return c
}

func (c *listCache) get(name string) (models.RemoteList, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.lists[name]
	return l, ok
}

func (c *listCache) put(name string, l models.RemoteList) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[name] = l
}
