package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/service"
)

type triggerRequest struct {
	TenantID string `json:"tenantId"`
}

type createJobsRequest struct {
	TenantID string   `json:"tenantId" binding:"required"`
	Persona  string   `json:"persona" binding:"required"`
	Topic    string   `json:"topic"`
	Topics   []string `json:"topics"`
}

// handleTrigger runs one cycle of a pipeline stage. The body is optional and
// may narrow the cycle to a single tenant.
func (s *Server) handleTrigger(stage service.StageRunner, wait bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req triggerRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
				return
			}
		}

		summary, err := stage.Run(c.Request.Context(), service.TriggerOptions{
			TenantID: req.TenantID,
			Wait:     wait,
		})
		if err != nil {
			s.Logger.Error("Stage trigger failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "stage trigger failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
	}
}

// handleCreateJobs enqueues one job per topic for a tenant persona.
func (s *Server) handleCreateJobs(c *gin.Context) {
	var req createJobsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	topics := make([]string, 0, len(req.Topics)+1)
	for _, topic := range append([]string{req.Topic}, req.Topics...) {
		if topic = strings.TrimSpace(topic); topic != "" {
			topics = append(topics, topic)
		}
	}
	if len(topics) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "at least one topic is required"})
		return
	}

	tenant, err := s.Registry.Tenant(c.Request.Context(), req.TenantID)
	if err != nil {
		if errors.Is(err, service.ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "unknown tenant"})
			return
		}
		s.Logger.Error("Failed to load tenant", zap.String("tenant_id", req.TenantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load tenant"})
		return
	}
	if tenant.Status != models.TenantActive {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": "tenant is not active"})
		return
	}

	jobs := make([]*models.Job, 0, len(topics))
	for _, topic := range topics {
		job, err := s.Store.CreateJob(c.Request.Context(), req.TenantID, req.Persona, topic)
		if err != nil {
			s.Logger.Error("Failed to create job",
				zap.String("tenant_id", req.TenantID),
				zap.String("topic", topic),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to create job"})
			return
		}
		jobs = append(jobs, job)
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "jobs": jobs})
}

func (s *Server) handleListJobs(c *gin.Context) {
	filter := service.JobFilter{
		TenantID: c.Query("tenantId"),
		Status:   models.Status(c.Query("status")),
	}

	if raw := c.Query("step"); raw != "" {
		step, err := strconv.Atoi(raw)
		if err != nil || step < int(models.StepGenerate) || step > int(models.StepUpload) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid step"})
			return
		}
		filter.Step = models.Step(step)
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	jobs, err := s.Store.ListJobs(c.Request.Context(), filter)
	if err != nil {
		s.Logger.Error("Failed to list jobs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list jobs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "jobs": jobs, "count": len(jobs)})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.Store.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "job not found"})
			return
		}
		s.Logger.Error("Failed to get job", zap.String("job_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to get job"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "job": job})
}

func (s *Server) handleStatsSummary(c *gin.Context) {
	summary, err := s.Monitor.GetSummary(c.Request.Context(), s.Store)
	if err != nil {
		s.Logger.Error("Failed to build stats summary", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to build summary"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
}
