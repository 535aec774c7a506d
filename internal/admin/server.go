// Package admin serves the operator HTTP surface: probes, metrics and
// manual delivery runs.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Proton-105/horoscope-bot/internal/deliver"
	"github.com/Proton-105/horoscope-bot/internal/domain"
	"github.com/Proton-105/horoscope-bot/internal/health"
	"github.com/Proton-105/horoscope-bot/internal/jobs"
	"github.com/Proton-105/horoscope-bot/internal/middleware"
	"github.com/Proton-105/horoscope-bot/internal/repository"
)

const (
	defaultRecentRuns = 10
	maxRecentRuns     = 100
)

// Probes answers liveness and readiness.
type Probes interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
	Report(ctx context.Context) health.Report
}

// Runner runs the delivery loop in-process.
type Runner interface {
	RunNow(ctx context.Context, w domain.Window) (*deliver.Report, error)
}

// Options wires the server. Runner runs deliveries synchronously; when
// Queue is set deliveries are enqueued instead.
type Options struct {
	Token         string
	Probes        Probes
	Runner        Runner
	Queue         jobs.Manager
	Runs          repository.RunStore
	CurrentWindow func() domain.Window
}

type server struct {
	opts Options
	log  *slog.Logger
}

// NewRouter builds the gin engine. Admin routes are only mounted when a
// token is configured.
func NewRouter(opts Options, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}
	s := &server{opts: opts, log: log}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.GinLogger(log))

	r.GET("/healthz", s.liveness)
	r.GET("/readyz", s.readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if opts.Token == "" {
		log.Info("admin api disabled: no token configured")
		return r
	}

	group := r.Group("/admin", s.authorize)
	group.POST("/deliveries", s.triggerDelivery)
	group.GET("/deliveries", s.recentRuns)

	return r
}

func (s *server) authorize(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.Token)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (s *server) liveness(c *gin.Context) {
	if s.opts.Probes != nil {
		if err := s.opts.Probes.Liveness(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *server) readiness(c *gin.Context) {
	if s.opts.Probes == nil {
		c.JSON(http.StatusOK, health.Report{Healthy: true, Components: map[string]string{}})
		return
	}

	ctx := c.Request.Context()
	if err := s.opts.Probes.Readiness(ctx); err != nil {
		report := s.opts.Probes.Report(ctx)
		report.Healthy = false
		c.JSON(http.StatusServiceUnavailable, report)
		return
	}
	c.JSON(http.StatusOK, s.opts.Probes.Report(ctx))
}

type deliveryRequest struct {
	Window string `json:"window"`
}

func (s *server) triggerDelivery(c *gin.Context) {
	var req deliveryRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	var window domain.Window
	switch {
	case req.Window != "":
		w, err := domain.ParseWindow(req.Window)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "window must be YYYY-MM-DD"})
			return
		}
		window = w
	case s.opts.CurrentWindow != nil:
		window = s.opts.CurrentWindow()
	}

	ctx := c.Request.Context()
	if s.opts.Queue != nil {
		task, err := jobs.NewDailyDeliveryTask(window.String())
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build task"})
			return
		}

		info, err := s.opts.Queue.Enqueue(ctx, task)
		if errors.Is(err, asynq.ErrDuplicateTask) {
			c.JSON(http.StatusConflict, gin.H{"error": "delivery already queued", "window": window})
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue delivery"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID, "window": window})
		return
	}

	if s.opts.Runner == nil || window == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "delivery is not configured"})
		return
	}

	s.log.InfoContext(ctx, "manual delivery requested over http", slog.String("window", window.String()))
	report, err := s.opts.Runner.RunNow(ctx, window)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delivery run failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *server) recentRuns(c *gin.Context) {
	if s.opts.Runs == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []repository.RunRecord{}})
		return
	}

	limit := defaultRecentRuns
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRecentRuns)
	}

	runs, err := s.opts.Runs.Recent(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
