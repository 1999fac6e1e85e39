package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/searchsync/logger"
	"github.com/meghashyamc/searchsync/models"
	"github.com/meghashyamc/searchsync/services/syncer"
	"github.com/meghashyamc/searchsync/validation"
)

type Syncer interface {
	Run(ctx context.Context, opts syncer.Options) (*models.SyncRun, error)
	Start(opts syncer.Options) (string, error)
	GetRun(runID string) (*models.SyncRun, error)
	Status(ctx context.Context) (*models.SyncStatus, error)
}

type SyncRequest struct {
	BatchSize     int  `json:"batch_size" validate:"min=0,max=500"`
	ForceAll      bool `json:"force_all" validate:"exclusive_with=Incremental"`
	Incremental   bool `json:"incremental"`
	Days          int  `json:"days" validate:"min=0,max=365"`
	ClearExisting bool `json:"clear_existing"`
	DryRun        bool `json:"dry_run"`
	Async         bool `json:"async"`
}

func (r *SyncRequest) toOptions() syncer.Options {
	mode := models.SyncModeFull
	if r.Incremental {
		mode = models.SyncModeIncremental
	}

	return syncer.Options{
		Mode:          mode,
		BatchSize:     r.BatchSize,
		Days:          r.Days,
		ForceAll:      r.ForceAll,
		ClearExisting: r.ClearExisting,
		DryRun:        r.DryRun,
	}
}

type SyncStartedResponse struct {
	RunID string `json:"run_id"`
}

func SetupSync(router *gin.Engine, logger logger.Logger, service Syncer, validator *validation.Validator) {
	router.POST("/sync", handleSync(service, logger, validator))
	router.GET("/sync/status", handleSyncStatus(service, logger))
	router.GET("/sync/runs/:id", handleGetSyncRun(service, logger))
}

func handleSync(service Syncer, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := SyncRequest{}
		// An empty body means a full sync with defaults.
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&request); err != nil {
				writeBindingError(c, logger, err)
				return
			}
		}

		if err := validator.Validate(request); err != nil {
			writeValidationError(c, logger, err)
			return
		}

		if request.Async {
			runID, err := service.Start(request.toOptions())
			if err != nil {
				writeError(c, logger, "could not start sync", err)
				return
			}
			writeResponse(c, SyncStartedResponse{RunID: runID}, http.StatusAccepted, nil)
			return
		}

		run, err := service.Run(context.WithoutCancel(c.Request.Context()), request.toOptions())
		if err != nil {
			writeError(c, logger, "sync failed", err)
			return
		}

		writeResponse(c, run, http.StatusOK, nil)
	}
}

func handleSyncStatus(service Syncer, logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := service.Status(c.Request.Context())
		if err != nil {
			writeError(c, logger, "could not get sync status", err)
			return
		}

		writeResponse(c, status, http.StatusOK, nil)
	}
}

func handleGetSyncRun(service Syncer, logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := service.GetRun(c.Param("id"))
		if err != nil {
			writeError(c, logger, "could not get sync run", err)
			return
		}

		writeResponse(c, run, http.StatusOK, nil)
	}
}
