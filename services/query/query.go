package query

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/meghashyamc/searchsync/apperrors"
	"github.com/meghashyamc/searchsync/config"
	"github.com/meghashyamc/searchsync/db/searchdb"
	"github.com/meghashyamc/searchsync/models"
)

const (
	// Queries shorter than this (in runes) skip fuzzy matching.
	shortQueryThreshold = 2
	fuzziness           = 1
	fuzzyPrefixLength   = 2

	defaultPageSize = 20

	// Tags are expected to weigh about as much as the description.
	tagsBoostTolerance = 0.5
)

const (
	FacetCategory = "categories"
	FacetTags     = "tags"
	FacetLanguage = "languages"
)

var facetSizes = map[string]struct {
	field string
	size  int
}{
	FacetCategory: {field: searchdb.FieldMainCategory, size: 10},
	FacetTags:     {field: searchdb.FieldTags, size: 20},
	FacetLanguage: {field: searchdb.FieldLanguage, size: 5},
}

var sortOrders = map[string][]string{
	models.SortRelevance: {"-_score", "-" + searchdb.FieldUpdatedDate, "_id"},
	models.SortDateDesc:  {"-" + searchdb.FieldUpdatedDate, "_id"},
	models.SortDateAsc:   {searchdb.FieldUpdatedDate, "_id"},
	models.SortViewsDesc: {"-" + searchdb.FieldViewCount, "-_score", "_id"},
	models.SortLikesDesc: {"-" + searchdb.FieldLikeCount, "-_score", "_id"},
}

type Builder struct {
	boosts          config.Boosts
	maxPageSize     int
	maxResultWindow int
}

func New(boosts config.Boosts, maxPageSize int, maxResultWindow int) (*Builder, error) {
	if err := validateBoosts(boosts); err != nil {
		return nil, err
	}
	if maxPageSize <= 0 || maxResultWindow < maxPageSize {
		return nil, apperrors.Newf(apperrors.ErrValidation, "query.New", "invalid limits: max page size %d, max result window %d", maxPageSize, maxResultWindow)
	}

	return &Builder{boosts: boosts, maxPageSize: maxPageSize, maxResultWindow: maxResultWindow}, nil
}

func validateBoosts(boosts config.Boosts) error {
	if boosts.Title < boosts.Topic || boosts.Topic < boosts.Description {
		return apperrors.Newf(apperrors.ErrValidation, "query.New", "boosts must satisfy title >= topic >= description, got %.2f, %.2f, %.2f", boosts.Title, boosts.Topic, boosts.Description)
	}
	if math.Abs(boosts.Tags-boosts.Description) > tagsBoostTolerance {
		return apperrors.Newf(apperrors.ErrValidation, "query.New", "tags boost %.2f is too far from description boost %.2f", boosts.Tags, boosts.Description)
	}
	return nil
}

// Page returns the effective page and page size after defaults and clamping.
func (b *Builder) Page(request models.SearchRequest) (int, int) {
	page := max(request.Page, 1)

	pageSize := request.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	return page, min(pageSize, b.maxPageSize)
}

func (b *Builder) Build(request models.SearchRequest) (*bleve.SearchRequest, error) {
	sortOrder, ok := sortOrders[sortName(request.Sort)]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrValidation, "query.Build", "unknown sort option %q", request.Sort)
	}
	if request.DateFrom != nil && request.DateTo != nil && request.DateFrom.After(*request.DateTo) {
		return nil, apperrors.New(apperrors.ErrValidation, "query.Build", "date_from must not be after date_to")
	}

	page, pageSize := b.Page(request)
	from := (page - 1) * pageSize
	if from+pageSize > b.maxResultWindow {
		return nil, apperrors.Newf(apperrors.ErrValidation, "query.Build", "page %d is beyond the maximum result window of %d", page, b.maxResultWindow)
	}

	text := strings.TrimSpace(request.Query)

	searchRequest := bleve.NewSearchRequestOptions(b.compose(text, request), pageSize, from, false)
	searchRequest.SortBy(sortOrder)
	searchRequest.Fields = searchdb.StoredFields

	for name, facet := range facetSizes {
		searchRequest.AddFacet(name, bleve.NewFacetRequest(facet.field, facet.size))
	}

	if text != "" {
		searchRequest.Highlight = bleve.NewHighlightWithStyle(HighlightStyle)
		for _, field := range []string{searchdb.FieldTitle, searchdb.FieldDescription, searchdb.FieldTopic, searchdb.FieldContentText} {
			searchRequest.Highlight.AddField(field)
		}
	}

	return searchRequest, nil
}

// BuildAutocomplete matches titles and tags starting with prefix.
func (b *Builder) BuildAutocomplete(prefix string, size int) *bleve.SearchRequest {
	lowered := strings.ToLower(strings.TrimSpace(prefix))

	titlePrefix := bleve.NewPrefixQuery(lowered)
	titlePrefix.SetField(searchdb.FieldTitle)
	titlePrefix.SetBoost(b.boosts.Title)

	tagPrefix := bleve.NewPrefixQuery(lowered)
	tagPrefix.SetField(searchdb.FieldTagsLower)
	tagPrefix.SetBoost(b.boosts.Tags)

	searchRequest := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(titlePrefix, tagPrefix), size, 0, false)
	searchRequest.SortBy(sortOrders[models.SortRelevance])
	searchRequest.Fields = []string{searchdb.FieldTitle, searchdb.FieldTags}

	return searchRequest
}

func (b *Builder) compose(text string, request models.SearchRequest) bleveQuery.Query {
	filters := b.filters(request)
	if text == "" && len(filters) == 0 {
		return bleve.NewMatchAllQuery()
	}

	var textQuery bleveQuery.Query = bleve.NewMatchAllQuery()
	if text != "" {
		if utf8.RuneCountInString(text) < shortQueryThreshold {
			textQuery = b.shortTextQuery(text)
		} else {
			textQuery = b.fuzzyTextQuery(text)
		}
	}

	if len(filters) == 0 {
		return textQuery
	}

	return bleve.NewConjunctionQuery(append([]bleveQuery.Query{textQuery}, filters...)...)
}

// shortTextQuery avoids fuzzy expansion for one-character input.
func (b *Builder) shortTextQuery(text string) bleveQuery.Query {
	lowered := strings.ToLower(text)
	disjunction := bleve.NewDisjunctionQuery()

	for field, boost := range b.textFieldBoosts() {
		prefixQuery := bleve.NewPrefixQuery(lowered)
		prefixQuery.SetField(field)
		prefixQuery.SetBoost(boost)
		disjunction.AddQuery(prefixQuery)
	}

	tagQuery := bleve.NewTermQuery(lowered)
	tagQuery.SetField(searchdb.FieldTagsLower)
	tagQuery.SetBoost(b.boosts.Tags)
	disjunction.AddQuery(tagQuery)

	return disjunction
}

func (b *Builder) fuzzyTextQuery(text string) bleveQuery.Query {
	disjunction := bleve.NewDisjunctionQuery()

	for field, boost := range b.textFieldBoosts() {
		matchQuery := bleve.NewMatchQuery(text)
		matchQuery.SetField(field)
		matchQuery.SetFuzziness(fuzziness)
		matchQuery.SetPrefix(fuzzyPrefixLength)
		matchQuery.SetBoost(boost)
		disjunction.AddQuery(matchQuery)
	}

	englishTitle := bleve.NewMatchQuery(text)
	englishTitle.SetField(searchdb.FieldTitleEnglish)
	englishTitle.SetBoost(b.boosts.Title)
	disjunction.AddQuery(englishTitle)

	phraseQuery := bleve.NewMatchPhraseQuery(text)
	phraseQuery.SetField(searchdb.FieldTitle)
	phraseQuery.SetBoost(b.boosts.Title)
	disjunction.AddQuery(phraseQuery)

	tagQuery := bleve.NewMatchQuery(strings.ToLower(text))
	tagQuery.SetField(searchdb.FieldTagsLower)
	tagQuery.SetFuzziness(fuzziness)
	tagQuery.SetPrefix(fuzzyPrefixLength)
	tagQuery.SetBoost(b.boosts.Tags)
	disjunction.AddQuery(tagQuery)

	return disjunction
}

func (b *Builder) textFieldBoosts() map[string]float64 {
	return map[string]float64{
		searchdb.FieldTitle:       b.boosts.Title,
		searchdb.FieldTopic:       b.boosts.Topic,
		searchdb.FieldDescription: b.boosts.Description,
		searchdb.FieldContentText: b.boosts.Content,
	}
}

func (b *Builder) filters(request models.SearchRequest) []bleveQuery.Query {
	var filters []bleveQuery.Query

	if category := strings.TrimSpace(request.Category); category != "" {
		filters = append(filters, termQuery(searchdb.FieldMainCategory, category))
	}
	if subCategory := strings.TrimSpace(request.SubCategory); subCategory != "" {
		filters = append(filters, termQuery(searchdb.FieldSubCategory, subCategory))
	}
	if language := strings.TrimSpace(request.Language); language != "" && language != models.LanguageAll {
		filters = append(filters, termQuery(searchdb.FieldLanguage, language))
	}

	var tagQueries []bleveQuery.Query
	for _, tag := range request.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tagQueries = append(tagQueries, termQuery(searchdb.FieldTags, tag))
		}
	}
	if len(tagQueries) > 0 {
		filters = append(filters, bleve.NewDisjunctionQuery(tagQueries...))
	}

	if request.DateFrom != nil || request.DateTo != nil {
		var start, end time.Time
		if request.DateFrom != nil {
			start = *request.DateFrom
		}
		if request.DateTo != nil {
			end = *request.DateTo
		}
		inclusive := true
		dateQuery := bleve.NewDateRangeInclusiveQuery(start, end, &inclusive, &inclusive)
		dateQuery.SetField(searchdb.FieldUpdatedDate)
		filters = append(filters, dateQuery)
	}

	return filters
}

func termQuery(field string, term string) bleveQuery.Query {
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	return q
}

func sortName(sort string) string {
	if sort == "" {
		return models.SortRelevance
	}
	return sort
}
