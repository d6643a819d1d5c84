// Package classify turns a classification request into a final result by
// running the rule engine and, when the rules are not conclusive, the
// reasoning service.
package classify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/nhle/inbox-clarity/internal/ai"
	"github.com/nhle/inbox-clarity/internal/model"
)

var errNoReasoner = errors.New("reasoning service not configured")

// RuleEngine produces a deterministic verdict for a request.
type RuleEngine interface {
	Apply(req model.ClassificationRequest) model.RuleVerdict
}

// Reasoner asks the external reasoning service for a verdict. It must not
// fail: implementations return a fallback verdict instead.
type Reasoner interface {
	Classify(ctx context.Context, req model.ClassificationRequest) model.ReasoningVerdict
	Model() string
}

// Classifier runs the classification pipeline for one request at a time.
// It keeps no per-request state and may be shared between goroutines.
type Classifier struct {
	rules    RuleEngine
	reasoner Reasoner
	policy   MergePolicy
	logger   *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithMergePolicy replaces the default merge policy.
func WithMergePolicy(p MergePolicy) Option {
	return func(c *Classifier) {
		c.policy = p
	}
}

// WithLogger sets the logger used for per-request diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Classifier. reasoner may be nil, in which case requests the
// rules cannot settle get the reasoning fallback verdict.
func New(rules RuleEngine, reasoner Reasoner, opts ...Option) *Classifier {
	c := &Classifier{
		rules:    rules,
		reasoner: reasoner,
		policy:   MergePolicy{OverrideThreshold: DefaultOverrideThreshold},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the final classification of req. It never fails.
func (c *Classifier) Classify(
	ctx context.Context,
	req model.ClassificationRequest,
) model.ClassificationResult {
	verdict := c.rules.Apply(req)

	if verdict.SkipReasoning && verdict.Category.IsSet() {
		c.logger.Debug("classified by rules",
			zap.String("rule", verdict.Rule),
			zap.String("category", string(verdict.Category)),
		)
		return RulesOnly(verdict, req.From)
	}

	reasoning, modelUsed := c.reason(ctx, req)
	result := c.policy.Merge(verdict, reasoning, modelUsed)

	c.logger.Debug("classified with reasoning",
		zap.String("rule", verdict.Rule),
		zap.String("ruleCategory", string(verdict.Category)),
		zap.String("reasoningCategory", string(reasoning.Category)),
		zap.String("category", string(result.Category)),
		zap.Bool("degraded", result.Degraded != ""),
	)
	return result
}

func (c *Classifier) reason(
	ctx context.Context,
	req model.ClassificationRequest,
) (model.ReasoningVerdict, string) {
	if c.reasoner == nil {
		return ai.Fallback(req, errNoReasoner), model.ModelRulesOnly
	}
	return c.reasoner.Classify(ctx, req), c.reasoner.Model()
}
