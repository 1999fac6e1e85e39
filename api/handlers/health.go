package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/searchsync/services/health"
)

type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

func SetupHealth(router *gin.Engine, checker HealthChecker) {
	router.GET("/health", handleHealth(checker))
}

func handleHealth(checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := checker.Check(c.Request.Context())

		statusCode := http.StatusOK
		if report.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		writeResponse(c, report, statusCode, nil)
	}
}
