package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/searchsync/logger"
)

type IndexRebuilder interface {
	RebuildIndex(name string) error
}

type ResultInvalidator interface {
	InvalidateResults(ctx context.Context)
}

func SetupIndex(router *gin.Engine, logger logger.Logger, rebuilder IndexRebuilder, invalidator ResultInvalidator, indexName string) {
	router.POST("/index/rebuild", handleRebuildIndex(rebuilder, invalidator, logger, indexName))
}

func handleRebuildIndex(rebuilder IndexRebuilder, invalidator ResultInvalidator, logger logger.Logger, indexName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := rebuilder.RebuildIndex(indexName); err != nil {
			writeError(c, logger, "could not rebuild index", err)
			return
		}
		invalidator.InvalidateResults(context.WithoutCancel(c.Request.Context()))

		logger.Info("rebuilt index", "index", indexName)
		writeResponse(c, nil, http.StatusNoContent, nil)
	}
}
