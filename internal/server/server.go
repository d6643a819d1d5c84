// Package server exposes the classification pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nhle/inbox-clarity/internal/inbound"
	"github.com/nhle/inbox-clarity/internal/model"
	"github.com/nhle/inbox-clarity/internal/store"
	"github.com/nhle/inbox-clarity/internal/sync"
)

const (
	serviceName     = "email-classifier"
	shutdownTimeout = 10 * time.Second

	defaultInsightLimit = 50
)

// Classifier classifies one validated request.
type Classifier interface {
	Classify(ctx context.Context, req model.ClassificationRequest) model.ClassificationResult
}

// Refresher runs one batch over the configured mailbox.
type Refresher interface {
	Refresh(ctx context.Context) (*sync.Summary, error)
}

// InsightReader lists stored insights.
type InsightReader interface {
	GetInsights(ctx context.Context, filter store.InsightFilter) ([]model.Insight, error)
}

// Options configures a Server.
type Options struct {
	// ReasoningConfigured is reported by the health endpoint.
	ReasoningConfigured bool

	// Insights backs the insights endpoint. It answers 503 when nil.
	Insights InsightReader
}

// Server is the HTTP surface of the service.
type Server struct {
	engine     *gin.Engine
	classifier Classifier
	refresher  Refresher
	opts       Options
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a server. refresher may be nil when no mailbox is
// configured; the refresh endpoint then answers 503.
func New(
	classifier Classifier,
	refresher Refresher,
	opts Options,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	inbound.UseJSONFieldNames()

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:     gin.New(),
		classifier: classifier,
		refresher:  refresher,
		opts:       opts,
		logger:     logger.Named("http"),
		now:        time.Now,
	}
	s.engine.Use(gin.Recovery(), requestLogger(s.logger))

	api := s.engine.Group("/internal/ai")
	api.POST("/classify-email", s.handleClassify)
	api.GET("/health", s.handleHealth)
	api.POST("/refresh", s.handleRefresh)
	api.GET("/insights", s.handleInsights)

	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// requestLogger logs every request at a level chosen by its status.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			fields = append(fields, zap.String("errors", errs))
		}

		switch {
		case c.Writer.Status() >= 500:
			logger.Error("server error", fields...)
		case c.Writer.Status() >= 400:
			logger.Warn("client error", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	}
}
