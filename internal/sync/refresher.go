// Package sync drives mailbox refreshes: it lists recent messages, runs
// each through the classification pipeline and stores the results.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/inbox-clarity/internal/model"
	"github.com/nhle/inbox-clarity/internal/normalize"
	"github.com/nhle/inbox-clarity/internal/source"
	"github.com/nhle/inbox-clarity/internal/store"
)

const (
	defaultBatchSize   = 10
	defaultConcurrency = 4
	defaultDeadline    = 2 * time.Minute
	retryBase          = time.Second
)

// Classifier classifies a single request. It never fails; degraded
// results carry their cause.
type Classifier interface {
	Classify(ctx context.Context, req model.ClassificationRequest) model.ClassificationResult
}

// Options configures a Refresher.
type Options struct {
	UserEmail string
	Query     string
	Batch     model.BatchConfig
}

// Summary reports the outcome of one refresh.
type Summary struct {
	// Processed counts listed messages that were attempted.
	Processed int `json:"processed"`

	// Classified counts messages that produced a result, including
	// results built from a reasoning fallback.
	Classified int `json:"classified"`
	Stored     int `json:"stored"`

	Counts map[model.Category]int `json:"counts"`
	Errors []string               `json:"errors"`

	// Success is true when at least one message was classified or the
	// mailbox had nothing to classify.
	Success bool `json:"success"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Refresher runs batches over one mailbox.
type Refresher struct {
	provider   source.MailProvider
	normalizer *normalize.Normalizer
	classifier Classifier
	store      store.Store
	opts       Options
	logger     *zap.Logger

	now     func() time.Time
	backoff func() retry.Backoff
}

// NewRefresher creates a refresher. st may be nil, in which case results
// are only counted.
func NewRefresher(
	provider source.MailProvider,
	normalizer *normalize.Normalizer,
	classifier Classifier,
	st store.Store,
	opts Options,
	logger *zap.Logger,
) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Batch.Size <= 0 {
		opts.Batch.Size = defaultBatchSize
	}
	if opts.Batch.Concurrency <= 0 {
		opts.Batch.Concurrency = defaultConcurrency
	}
	if opts.Batch.FetchRetries < 0 {
		opts.Batch.FetchRetries = 0
	}
	return &Refresher{
		provider:   provider,
		normalizer: normalizer,
		classifier: classifier,
		store:      st,
		opts:       opts,
		logger:     logger.Named("refresher"),
		now:        time.Now,
		backoff:    func() retry.Backoff { return retry.NewFibonacci(retryBase) },
	}
}

// Refresh lists recent messages and classifies them with bounded
// concurrency. It returns an error only when the message list cannot be
// obtained; per-message failures are collected in the summary. The batch
// deadline cancels in-flight work, which then takes the fallback path.
func (r *Refresher) Refresh(ctx context.Context) (*Summary, error) {
	deadline := time.Duration(r.opts.Batch.DeadlineSec) * time.Second
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	summary := &Summary{
		Counts:    make(map[model.Category]int),
		Errors:    []string{},
		StartedAt: r.now(),
	}

	var ids []string
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		ids, err = r.provider.ListRecent(ctx, source.ListOptions{
			Query:      r.opts.Query,
			MaxResults: r.opts.Batch.Size,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s messages: %w", r.provider.Type(), err)
	}
	if len(ids) > r.opts.Batch.Size {
		ids = ids[:r.opts.Batch.Size]
	}

	var mu gosync.Mutex
	var g errgroup.Group
	g.SetLimit(r.opts.Batch.Concurrency)

	for _, id := range ids {
		g.Go(func() error {
			outcome := r.processMessage(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			if outcome.classified {
				summary.Classified++
				summary.Counts[outcome.category]++
			}
			if outcome.stored {
				summary.Stored++
			}
			for _, e := range outcome.errs {
				summary.Errors = append(summary.Errors, fmt.Sprintf("message %s: %v", id, e))
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.FinishedAt = r.now()
	summary.Success = summary.Classified > 0 || summary.Processed == 0

	r.logger.Info("refresh finished",
		zap.Int("processed", summary.Processed),
		zap.Int("classified", summary.Classified),
		zap.Int("stored", summary.Stored),
		zap.Int("errors", len(summary.Errors)),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

type outcome struct {
	classified bool
	stored     bool
	category   model.Category
	errs       []error
}

func (r *Refresher) processMessage(ctx context.Context, id string) outcome {
	var out outcome
	log := r.logger.With(zap.String("message_id", id))

	var raw *model.RawMessage
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		raw, err = r.provider.FetchMessage(ctx, id)
		return err
	})
	if err != nil {
		log.Warn("fetch failed", zap.Error(err))
		out.errs = append(out.errs, fmt.Errorf("fetching: %w", err))
		return out
	}

	email, err := r.normalizer.Normalize(raw)
	if err != nil {
		log.Warn("skipping malformed message", zap.Error(err))
		out.errs = append(out.errs, err)
		return out
	}

	info := r.threadInfo(ctx, email.ThreadID, log)
	req := BuildRequest(email, r.opts.UserEmail, info, r.now())

	result := r.classifier.Classify(ctx, req)
	out.classified = true
	out.category = result.Category
	if result.Degraded != "" {
		out.errs = append(out.errs, fmt.Errorf("reasoning fallback: %s", result.Degraded))
	}

	if r.store == nil {
		return out
	}
	if err := r.persist(ctx, email, req, info, result); err != nil {
		log.Warn("storing insight failed", zap.Error(err))
		out.errs = append(out.errs, err)
		return out
	}
	out.stored = true
	return out
}

// threadInfo asks the provider for thread context when it can describe
// threads. Failures are logged and the message stands alone.
func (r *Refresher) threadInfo(
	ctx context.Context,
	threadID string,
	log *zap.Logger,
) *source.ThreadInfo {
	reader, ok := r.provider.(source.ThreadReader)
	if !ok {
		return nil
	}

	var info *source.ThreadInfo
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		info, err = reader.ThreadInfo(ctx, threadID)
		return err
	})
	if err != nil {
		log.Warn("thread context unavailable", zap.String("thread_id", threadID), zap.Error(err))
		return nil
	}
	return info
}

func (r *Refresher) persist(
	ctx context.Context,
	email *model.NormalizedEmail,
	req model.ClassificationRequest,
	info *source.ThreadInfo,
	result model.ClassificationResult,
) error {
	threadID, err := r.store.UpsertThread(ctx, threadRecord(email, req, info))
	if err != nil {
		return fmt.Errorf("storing thread: %w", err)
	}
	if err := r.store.UpsertInsight(ctx, insightRecord(req.UserEmail, threadID, result, r.now())); err != nil {
		return fmt.Errorf("storing insight: %w", err)
	}
	return nil
}

// withRetry retries fn with Fibonacci backoff. Authentication failures and
// context cancellation are returned immediately.
func (r *Refresher) withRetry(
	ctx context.Context,
	fn func(ctx context.Context) error,
) error {
	b := retry.WithMaxRetries(uint64(r.opts.Batch.FetchRetries), r.backoff())
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		switch {
		case err == nil:
			return nil
		case source.IsAuthError(err),
			errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			return retry.RetryableError(err)
		}
	})
}
