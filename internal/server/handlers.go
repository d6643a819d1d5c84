package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nhle/inbox-clarity/internal/inbound"
	"github.com/nhle/inbox-clarity/internal/model"
	"github.com/nhle/inbox-clarity/internal/source"
	"github.com/nhle/inbox-clarity/internal/store"
)

func (s *Server) handleClassify(c *gin.Context) {
	var req inbound.ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": inbound.Details(err),
		})
		return
	}

	in := req.ToModel()
	s.logger.Debug("classifying email",
		zap.String("subject", in.Subject),
		zap.String("from", in.From),
	)

	result := s.classifier.Classify(c.Request.Context(), in)
	s.logger.Info("email classified",
		zap.String("category", string(result.Category)),
		zap.String("model", result.ModelUsed),
		zap.Bool("degraded", result.Degraded != ""),
	)
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":              "healthy",
		"service":             serviceName,
		"timestamp":           s.now().UTC().Format(time.RFC3339),
		"reasoningConfigured": s.opts.ReasoningConfigured,
	})
}

func (s *Server) handleRefresh(c *gin.Context) {
	if s.refresher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No mailbox configured"})
		return
	}

	summary, err := s.refresher.Refresh(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		if source.IsAuthError(err) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Mailbox not authenticated",
				"details": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Email processing failed",
			"details": err.Error(),
		})
		return
	}

	if !summary.Success {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Email processing failed",
			"details":    summary.Errors,
			"processed":  summary.Processed,
			"classified": summary.Classified,
		})
		return
	}

	body := gin.H{
		"success":    true,
		"message":    "Email processing completed",
		"processed":  summary.Processed,
		"classified": summary.Classified,
		"stored":     summary.Stored,
		"summary":    summary.Counts,
	}
	if len(summary.Errors) > 0 {
		body["errors"] = summary.Errors
	}
	c.JSON(http.StatusOK, body)
}

type insightsQuery struct {
	UserEmail string `form:"userEmail" json:"userEmail" binding:"omitempty,email"`
	Category  string `form:"category" json:"category" binding:"omitempty,oneof=IMPORTANT FOLLOW_UP NOISE FYI"`
	Limit     int    `form:"limit" json:"limit" binding:"min=0,max=500"`
	Offset    int    `form:"offset" json:"offset" binding:"min=0"`
}

func (s *Server) handleInsights(c *gin.Context) {
	if s.opts.Insights == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No insight store configured"})
		return
	}

	var q insightsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid query",
			"details": inbound.Details(err),
		})
		return
	}

	filter := store.InsightFilter{Limit: q.Limit, Offset: q.Offset}
	if filter.Limit == 0 {
		filter.Limit = defaultInsightLimit
	}
	if q.UserEmail != "" {
		filter.UserEmail = &q.UserEmail
	}
	if q.Category != "" {
		category := model.Category(q.Category)
		filter.Category = &category
	}

	insights, err := s.opts.Insights.GetInsights(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Reading insights failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"insights": insights,
		"count":    len(insights),
	})
}
