package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/searchsync/logger"
	"github.com/meghashyamc/searchsync/models"
	"github.com/meghashyamc/searchsync/validation"
)

const (
	defaultResultsPerPage    = 20
	defaultAutocompleteLimit = 10
)

type Searcher interface {
	Search(ctx context.Context, request models.SearchRequest) (*models.SearchResponse, error)
	Autocomplete(ctx context.Context, prefix string, limit int) ([]string, error)
	Categories(ctx context.Context) []string
	Tags(ctx context.Context) []string
}

type SearchRequest struct {
	Query       string `form:"query" validate:"max=1000"`
	Category    string `form:"category" validate:"max=100"`
	SubCategory string `form:"subcategory" validate:"max=100"`
	Tags        string `form:"tags" validate:"valid_tags"`
	Language    string `form:"language" validate:"valid_language"`
	DateFrom    string `form:"date_from" validate:"valid_date,not_after=DateTo"`
	DateTo      string `form:"date_to" validate:"valid_date"`
	Page        int    `form:"page" validate:"min=0"`
	PageSize    int    `form:"page_size" validate:"min=0,max=100"`
	Sort        string `form:"sort" validate:"valid_sort"`
}

func (r *SearchRequest) setDefaults() {
	if r.PageSize == 0 {
		r.PageSize = defaultResultsPerPage
	}

	if r.Page == 0 {
		r.Page = 1
	}

	if r.Language == "" {
		r.Language = models.LanguageAll
	}

	if r.Sort == "" {
		r.Sort = models.SortRelevance
	}
}

// toModel assumes the request has been validated.
func (r *SearchRequest) toModel() models.SearchRequest {
	dateFrom, _ := validation.ParseDate(r.DateFrom, false)
	dateTo, _ := validation.ParseDate(r.DateTo, true)

	return models.SearchRequest{
		Query:       r.Query,
		Category:    r.Category,
		SubCategory: r.SubCategory,
		Tags:        validation.SplitTags(r.Tags),
		Language:    r.Language,
		DateFrom:    dateFrom,
		DateTo:      dateTo,
		Page:        r.Page,
		PageSize:    r.PageSize,
		Sort:        r.Sort,
	}
}

type AutocompleteRequest struct {
	Query string `form:"q" validate:"required,valid_query,max=100"`
	Limit int    `form:"limit" validate:"min=0,max=20"`
}

type AutocompleteResponse struct {
	Suggestions []string `json:"suggestions"`
}

type FilterOptionsResponse struct {
	Values []string `json:"values"`
}

func SetupSearch(router *gin.Engine, logger logger.Logger, service Searcher, validator *validation.Validator) {
	router.GET("/search", handleSearch(service, logger, validator))
	router.GET("/autocomplete", handleAutocomplete(service, logger, validator))
	router.GET("/categories", handleFilterOptions(service.Categories))
	router.GET("/tags", handleFilterOptions(service.Tags))
}

func handleSearch(service Searcher, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := SearchRequest{}
		if err := c.ShouldBindQuery(&request); err != nil {
			writeBindingError(c, logger, err)
			return
		}
		request.setDefaults()

		if err := validator.Validate(request); err != nil {
			writeValidationError(c, logger, err)
			return
		}

		results, err := service.Search(c.Request.Context(), request.toModel())
		if err != nil {
			writeError(c, logger, "search failed", err)
			return
		}

		c.Header(HeaderPaginationTotalCount, strconv.FormatUint(results.Total, 10))
		writeResponse(c, results, http.StatusOK, nil)
	}
}

func handleAutocomplete(service Searcher, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := AutocompleteRequest{}
		if err := c.ShouldBindQuery(&request); err != nil {
			writeBindingError(c, logger, err)
			return
		}
		if request.Limit == 0 {
			request.Limit = defaultAutocompleteLimit
		}

		if err := validator.Validate(request); err != nil {
			writeValidationError(c, logger, err)
			return
		}

		suggestions, err := service.Autocomplete(c.Request.Context(), request.Query, request.Limit)
		if err != nil {
			writeError(c, logger, "autocomplete failed", err)
			return
		}

		writeResponse(c, AutocompleteResponse{Suggestions: suggestions}, http.StatusOK, nil)
	}
}

func handleFilterOptions(list func(ctx context.Context) []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		writeResponse(c, FilterOptionsResponse{Values: list(c.Request.Context())}, http.StatusOK, nil)
	}
}
