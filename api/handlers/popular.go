package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/searchsync/logger"
	"github.com/meghashyamc/searchsync/models"
	"github.com/meghashyamc/searchsync/validation"
)

const defaultPopularLimit = 10

type PopularQueries interface {
	TopN(ctx context.Context, limit int) ([]models.PopularQuery, error)
}

type PopularRequest struct {
	Limit int `form:"limit" validate:"min=0,max=50"`
}

type PopularResponse struct {
	Queries []models.PopularQuery `json:"queries"`
}

func SetupPopular(router *gin.Engine, logger logger.Logger, service PopularQueries, validator *validation.Validator) {
	router.GET("/popular", handlePopular(service, logger, validator))
}

func handlePopular(service PopularQueries, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := PopularRequest{}
		if err := c.ShouldBindQuery(&request); err != nil {
			writeBindingError(c, logger, err)
			return
		}
		if request.Limit == 0 {
			request.Limit = defaultPopularLimit
		}

		if err := validator.Validate(request); err != nil {
			writeValidationError(c, logger, err)
			return
		}

		queries, err := service.TopN(c.Request.Context(), request.Limit)
		if err != nil {
			writeError(c, logger, "could not read popular queries", err)
			return
		}

		writeResponse(c, PopularResponse{Queries: queries}, http.StatusOK, nil)
	}
}
