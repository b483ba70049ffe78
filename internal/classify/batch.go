package classify

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kevinmichaelchen/star-tidy/internal/models"
)

// Filter splits repos into those to classify and those excluded by full name.
// Both keep input order.
func Filter(repos []models.Repository, exclude map[string]bool) (kept, excluded []models.Repository) {
	for _, repo := range repos {
		if exclude[repo.FullName] {
			excluded = append(excluded, repo)
			continue
		}
		kept = append(kept, repo)
	}
	return kept, excluded
}

// ClassifyAll classifies every non-excluded repository with at most
// concurrency calls in flight. Each repository gets exactly one classifier
// invocation and one entry in the result, keyed by full name.
func (c *Classifier) ClassifyAll(ctx context.Context, repos []models.Repository, scope Scope, exclude map[string]bool, concurrency int) map[string]models.ClassificationResult {
	kept, excluded := Filter(repos, exclude)
	c.logger.Info("analyzing repositories",
		zap.Int("count", len(kept)),
		zap.Int("excluded", len(excluded)),
		zap.Int("concurrency", concurrency),
	)

	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu      sync.Mutex
		results = make(map[string]models.ClassificationResult, len(kept))
		done    atomic.Int64
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, repo := range kept {
		g.Go(func() error {
			result := c.Classify(gCtx, repo, scope)

			mu.Lock()
			results[repo.FullName] = result
			mu.Unlock()

			n := done.Add(1)
			if n%10 == 0 || int(n) == len(kept) {
				c.logger.Info("classification progress", zap.Int64("done", n), zap.Int("total", len(kept)))
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	counts := map[string]int{}
	for _, r := range results {
		counts[r.Category]++
	}
	c.logger.Info("classification complete", zap.Any("categories", counts))
	return results
}
