package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthzHandler 存活探针（liveness probe）
func (s *Server) HealthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"type":   "liveness",
	})
}

// ReadinessHandler 就绪探针（readiness probe）
// 配置了存储时检查数据库连接
func (s *Server) ReadinessHandler(c *gin.Context) {
	uptime := time.Since(s.startTime)

	if s.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"type":    "readiness",
			"message": "runner not initialized",
		})
		return
	}

	if s.store != nil {
		sqlDB, err := s.store.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"type":    "readiness",
				"message": "cannot obtain database handle",
				"error":   err.Error(),
			})
			return
		}
		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"type":    "readiness",
				"message": "database ping failed",
				"error":   err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"type":   "readiness",
		"uptime": uptime.String(),
	})
}
