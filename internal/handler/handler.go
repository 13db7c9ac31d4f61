package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"TokenBench/internal/middleware"
	"TokenBench/internal/models"
	"TokenBench/internal/runner"
)

// Runner is the part of *runner.Runner the handlers use.
type Runner interface {
	Start(ctx context.Context, req models.StartRunRequest) (string, error)
	Current() *runner.Status
}

// Server holds handler dependencies. store and metrics may be nil.
type Server struct {
	ctx       context.Context
	store     *gorm.DB
	runner    Runner
	metrics   http.Handler
	allowed   []string
	startTime time.Time
}

// NewServer builds the status server. Runs started over HTTP live as long
// as ctx.
func NewServer(ctx context.Context, store *gorm.DB, r Runner, metrics http.Handler, allowed ...string) *Server {
	return &Server{
		ctx:       ctx,
		store:     store,
		runner:    r,
		metrics:   metrics,
		allowed:   allowed,
		startTime: time.Now(),
	}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", s.HealthzHandler)
	r.GET("/readyz", s.ReadinessHandler)

	r.GET("/runs", s.ListRunsHandler)
	r.GET("/runs/:id", s.GetRunHandler)
	r.GET("/progress", s.ProgressHandler)

	// 触发链上交易与指标只允许本地访问
	local := r.Group("/", middleware.LocalOnly(s.allowed...))
	local.POST("/runs", s.StartRunHandler)
	if s.metrics != nil {
		local.GET("/metrics", gin.WrapH(s.metrics))
	}
}
