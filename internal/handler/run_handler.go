package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"TokenBench/internal/db"
	"TokenBench/internal/models"
	"TokenBench/internal/runner"
)

func (s *Server) ListRunsHandler(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := db.ListRuns(s.store, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}

	out := make([]models.RunResponse, 0, len(runs))
	for i := range runs {
		out = append(out, db.ToResponse(&runs[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) GetRunHandler(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}

	run, err := db.GetRun(s.store, c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}
	c.JSON(http.StatusOK, db.ToResponse(run))
}

// ProgressHandler 当前（或最近一次）运行的阶段进度
func (s *Server) ProgressHandler(c *gin.Context) {
	st := s.runner.Current()
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run yet"})
		return
	}

	resp := gin.H{
		"run_id": st.RunID,
		"stage":  st.Progress.Current(),
		"stages": st.Progress.Snapshot(),
		"done":   st.Done,
	}
	if st.Err != nil {
		resp["error"] = st.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// StartRunHandler 启动一次后台运行，请求体可为空
func (s *Server) StartRunHandler(c *gin.Context) {
	var req models.StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if req.NumKeypairs < 0 || req.Concurrency < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	id, err := s.runner.Start(s.ctx, req)
	if err != nil {
		if errors.Is(err, runner.ErrBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, models.StartRunResponse{RunID: id})
}
