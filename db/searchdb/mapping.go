package searchdb

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/mapping"
)

// keywordLowercaseAnalyzer keeps a value as one token but folds its case.
const keywordLowercaseAnalyzer = "keyword_lowercase"

const (
	FieldTitle        = "title"
	FieldTitleExact   = "title_exact"
	FieldTitleEnglish = "title_en"
	FieldContentText  = "content_text"
	FieldTopic        = "topic"
	FieldDescription  = "description"
	FieldMainCategory = "main_category"
	FieldSubCategory  = "sub_category"
	FieldTags         = "tags"
	FieldTagsLower    = "tags_lower"
	FieldLanguage     = "language"
	FieldAuthorEmail  = "author_email"
	FieldViewCount    = "view_count"
	FieldLikeCount    = "like_count"
	FieldReadingTime  = "reading_time"
	FieldThumbnailURL = "thumbnail_url"
	FieldCreatedDate  = "created_date"
	FieldUpdatedDate  = "updated_date"
)

// StoredFields are returned with every hit.
var StoredFields = []string{
	FieldTitle, FieldTopic, FieldDescription, FieldMainCategory, FieldSubCategory, FieldTags,
	FieldLanguage, FieldAuthorEmail, FieldViewCount, FieldLikeCount, FieldReadingTime,
	FieldThumbnailURL, FieldUpdatedDate,
}

func createIndexMapping() (mapping.IndexMapping, error) {

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = standard.Name
	if err := indexMapping.AddCustomAnalyzer(keywordLowercaseAnalyzer, map[string]any{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, err
	}

	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false

	// Title is indexed three ways: analyzed, exact, and english-stemmed
	titleFieldMapping := searchableTextField(standard.Name)
	titleExactFieldMapping := keywordField(false)
	titleExactFieldMapping.Name = FieldTitleExact
	titleEnglishFieldMapping := bleve.NewTextFieldMapping()
	titleEnglishFieldMapping.Name = FieldTitleEnglish
	titleEnglishFieldMapping.Analyzer = en.AnalyzerName
	titleEnglishFieldMapping.Store = false
	docMapping.AddFieldMappingsAt(FieldTitle, titleFieldMapping, titleExactFieldMapping, titleEnglishFieldMapping)

	docMapping.AddFieldMappingsAt(FieldContentText, searchableTextField(standard.Name))
	docMapping.AddFieldMappingsAt(FieldTopic, searchableTextField(standard.Name))
	docMapping.AddFieldMappingsAt(FieldDescription, searchableTextField(standard.Name))

	// Filterable fields - not analyzed (exact match, facetable)
	docMapping.AddFieldMappingsAt(FieldMainCategory, keywordField(true))
	docMapping.AddFieldMappingsAt(FieldSubCategory, keywordField(true))
	tagsLowerFieldMapping := keywordField(false)
	tagsLowerFieldMapping.Name = FieldTagsLower
	tagsLowerFieldMapping.Analyzer = keywordLowercaseAnalyzer
	docMapping.AddFieldMappingsAt(FieldTags, keywordField(true), tagsLowerFieldMapping)
	docMapping.AddFieldMappingsAt(FieldLanguage, keywordField(true))
	docMapping.AddFieldMappingsAt(FieldAuthorEmail, keywordField(true))

	// Sort-only fields
	for _, field := range []string{FieldViewCount, FieldLikeCount, FieldReadingTime} {
		numericFieldMapping := bleve.NewNumericFieldMapping()
		numericFieldMapping.Store = true
		docMapping.AddFieldMappingsAt(field, numericFieldMapping)
	}

	for _, field := range []string{FieldCreatedDate, FieldUpdatedDate} {
		dateFieldMapping := bleve.NewDateTimeFieldMapping()
		dateFieldMapping.Store = true
		docMapping.AddFieldMappingsAt(field, dateFieldMapping)
	}

	thumbnailFieldMapping := bleve.NewTextFieldMapping()
	thumbnailFieldMapping.Index = false
	thumbnailFieldMapping.Store = true
	docMapping.AddFieldMappingsAt(FieldThumbnailURL, thumbnailFieldMapping)

	indexMapping.DefaultMapping = docMapping

	return indexMapping, nil
}

func searchableTextField(analyzer string) *mapping.FieldMapping {
	fieldMapping := bleve.NewTextFieldMapping()
	fieldMapping.Analyzer = analyzer
	fieldMapping.Store = true
	fieldMapping.IncludeTermVectors = true // for highlighting
	return fieldMapping
}

func keywordField(store bool) *mapping.FieldMapping {
	fieldMapping := bleve.NewTextFieldMapping()
	fieldMapping.Analyzer = keyword.Name
	fieldMapping.Store = store
	return fieldMapping
}
