package classify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kevinmichaelchen/star-tidy/internal/llm"
	"github.com/kevinmichaelchen/star-tidy/internal/models"
)

// SentinelConfidence is the confidence of the fallback classification.
const SentinelConfidence = 0.1

// Classifier assigns a category to one repository using the inference
// gateway. It never fails: any gateway or parse error becomes the
// Uncategorized sentinel.
type Classifier struct {
	gateway llm.Gateway
	logger  *zap.Logger
}

func NewClassifier(gateway llm.Gateway, logger *zap.Logger) *Classifier {
	return &Classifier{gateway: gateway, logger: logger}
}

func (c *Classifier) Classify(ctx context.Context, repo models.Repository, scope Scope) models.ClassificationResult {
	result, err := c.classify(ctx, repo, scope)
	if err != nil {
		c.logger.Error("failed to analyze repository", zap.String("repo", repo.FullName), zap.Error(err))
		return Sentinel(err)
	}
	c.logger.Info("analyzed repository",
		zap.String("repo", repo.FullName),
		zap.String("category", result.Category),
		zap.Float64("confidence", result.Confidence),
	)
	return result
}

func (c *Classifier) classify(ctx context.Context, repo models.Repository, scope Scope) (result models.ClassificationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	text, err := c.gateway.Complete(ctx, BuildPrompt(repo, scope))
	if err != nil {
		return models.ClassificationResult{}, err
	}
	return ParseResponse(text)
}

// Sentinel is the classification substituted when classification fails.
func Sentinel(err error) models.ClassificationResult {
	return models.ClassificationResult{
		Category:   models.Uncategorized,
		Reason:     "Analysis failed: " + err.Error(),
		Confidence: SentinelConfidence,
	}
}
