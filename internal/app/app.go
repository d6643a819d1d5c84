// Package app assembles the classification service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/nhle/inbox-clarity/internal/ai"
	"github.com/nhle/inbox-clarity/internal/classify"
	"github.com/nhle/inbox-clarity/internal/credential"
	"github.com/nhle/inbox-clarity/internal/model"
	"github.com/nhle/inbox-clarity/internal/normalize"
	"github.com/nhle/inbox-clarity/internal/rules"
	"github.com/nhle/inbox-clarity/internal/server"
	"github.com/nhle/inbox-clarity/internal/source"
	"github.com/nhle/inbox-clarity/internal/store"
	appsync "github.com/nhle/inbox-clarity/internal/sync"
)

// App holds the wired components of the service.
type App struct {
	Config     *model.AppConfig
	Logger     *zap.Logger
	Store      *store.SQLiteStore
	Classifier *classify.Classifier

	// Reasoner is nil when running rules-only.
	Reasoner *ai.Reasoner

	// Refresher is nil when no mailbox is configured.
	Refresher *appsync.Refresher
}

type options struct {
	creds     credential.Store
	provider  source.MailProvider
	rulesOnly bool
}

// Option customizes New.
type Option func(*options)

// WithCredentials replaces the default environment + keyring chain.
func WithCredentials(s credential.Store) Option {
	return func(o *options) { o.creds = s }
}

// WithProvider uses p instead of building a provider from the mailbox
// configuration.
func WithProvider(p source.MailProvider) Option {
	return func(o *options) { o.provider = p }
}

// WithRulesOnly allows starting without a reasoning credential. Requests
// the rules cannot settle then get the fallback verdict.
func WithRulesOnly(enabled bool) Option {
	return func(o *options) { o.rulesOnly = enabled }
}

// New wires the store, reasoner, classifier and (when a mailbox is
// configured) the refresher. A missing reasoning credential is a
// *ai.ConfigurationError unless rules-only mode was requested.
func New(
	ctx context.Context,
	cfg *model.AppConfig,
	logger *zap.Logger,
	opts ...Option,
) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.creds == nil {
		o.creds = DefaultCredentials(cfg, logger)
	}

	a := &App{Config: cfg, Logger: logger}

	st, err := openStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	a.Store = st
	if v, err := st.SchemaVersion(ctx); err == nil {
		logger.Debug("store opened", zap.String("path", cfg.Store.Path), zap.Int("schemaVersion", v))
	}

	var reasoner classify.Reasoner
	r, err := ai.NewReasoner(cfg.Reasoning, o.creds, logger)
	switch {
	case err == nil:
		a.Reasoner = r
		reasoner = r
	case ai.IsConfigurationError(err) && o.rulesOnly:
		logger.Warn("reasoning disabled; running rules-only", zap.Error(err))
	default:
		_ = st.Close()
		return nil, err
	}

	engine := rules.NewDefaultEngine(rules.WithNoiseLabels(cfg.Rules.NoiseLabels))
	a.Classifier = classify.New(engine, reasoner,
		classify.WithMergePolicy(classify.MergePolicy{OverrideThreshold: cfg.Rules.OverrideThreshold}),
		classify.WithLogger(logger),
	)

	provider := o.provider
	if provider == nil && cfg.Mailbox.Type != "" {
		provider, err = newProvider(ctx, cfg.Mailbox, o.creds)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	if provider != nil {
		a.Refresher = appsync.NewRefresher(
			provider,
			normalize.New(cfg.Normalizer.MaxBodyLength),
			a.Classifier,
			st,
			appsync.Options{
				UserEmail: cfg.Mailbox.UserEmail,
				Query:     cfg.Mailbox.Query,
				Batch:     cfg.Batch,
			},
			logger,
		)
	}

	return a, nil
}

// Server builds the HTTP surface over the wired components.
func (a *App) Server() *server.Server {
	var refresher server.Refresher
	if a.Refresher != nil {
		refresher = a.Refresher
	}
	opts := server.Options{ReasoningConfigured: a.Reasoner != nil}
	if a.Store != nil {
		opts.Insights = a.Store
	}
	return server.New(a.Classifier, refresher, opts, a.Logger)
}

// Close releases the store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// DefaultCredentials reads each secret from its environment variables
// first, then from the system keyring. An unavailable keyring is logged
// and skipped.
func DefaultCredentials(cfg *model.AppConfig, logger *zap.Logger) credential.Store {
	reasoningKey := cfg.Reasoning.CredentialKey
	if reasoningKey == "" {
		reasoningKey = ai.DefaultCredentialKey
	}
	chain := credential.Chain{credential.Scoped{
		reasoningKey:    credential.NewEnv(credential.DefaultEnvVars...),
		IMAPPasswordKey: credential.NewEnv(IMAPPasswordEnv),
	}}

	ring, err := credential.OpenKeyring()
	if err != nil {
		logger.Warn("system keyring unavailable", zap.Error(err))
		return chain
	}
	return append(chain, ring)
}

func openStore(path string) (*store.SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("store.path is not configured")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	st, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	return st, nil
}
