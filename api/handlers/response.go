package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/searchsync/apperrors"
	"github.com/meghashyamc/searchsync/logger"
)

// HeaderPaginationTotalCount carries the total hit count of a search.
const HeaderPaginationTotalCount = "X-Pagination-Total-Count"

type response struct {
	Data   any      `json:"data"`
	Errors []string `json:"errors"`
}

func writeResponse(c *gin.Context, data interface{}, statusCode int, errors []string) {

	if statusCode == http.StatusNoContent {
		c.JSON(statusCode, nil)
		return

	}

	response := response{
		Data:   data,
		Errors: errors,
	}

	c.JSON(statusCode, response)
}

// writeError maps err to its status code and logs server side failures at error level.
func writeError(c *gin.Context, logger logger.Logger, msg string, err error) {
	statusCode := apperrors.HTTPStatus(err)
	if statusCode >= http.StatusInternalServerError {
		logger.Error(msg, "err", err.Error())
	} else {
		logger.Warn(msg, "err", err.Error())
	}

	c.Abort()
	writeResponse(c, nil, statusCode, []string{err.Error()})
}

func writeBindingError(c *gin.Context, logger logger.Logger, err error) {
	logger.Warn("could not extract expected params from request", "path", c.FullPath(), "err", err.Error())
	c.Abort()
	writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request parameters"})
}

func writeValidationError(c *gin.Context, logger logger.Logger, err error) {
	logger.Warn("could not validate request", "path", c.FullPath(), "err", err.Error())
	c.Abort()
	writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
}
