package mapper

import (
	"bytes"
	"encoding/json"
	"html"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/meghashyamc/searchsync/apperrors"
	"github.com/meghashyamc/searchsync/models"
	"github.com/microcosm-cc/bluemonday"
)

const wordsPerMinute = 200

const (
	hangulSyllablesStart = '가'
	hangulSyllablesEnd   = '힣'
)

var markupPattern = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)

// Mapper turns source records into search documents. It performs no I/O and is safe for concurrent use.
type Mapper struct {
	koreanRatioThreshold float64
	policy               *bluemonday.Policy
}

func New(koreanRatioThreshold float64) *Mapper {
	return &Mapper{
		koreanRatioThreshold: koreanRatioThreshold,
		policy:               bluemonday.StrictPolicy(),
	}
}

func (m *Mapper) Map(record models.SourceRecord) (*models.SearchDocument, error) {
	id := strings.TrimSpace(record.ID)
	if id == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "mapper.Map", "id is required")
	}
	title := strings.TrimSpace(record.Title)
	if title == "" {
		return nil, apperrors.Newf(apperrors.ErrValidation, "mapper.Map", "title is required for record %s", id)
	}

	contentText := m.ExtractPlainText(record.Content)

	updated := record.UpdatedAt
	if updated.IsZero() {
		updated = record.CreatedAt
	}

	return &models.SearchDocument{
		ID:           id,
		Title:        title,
		ContentText:  contentText,
		Topic:        strings.TrimSpace(record.Topic),
		Description:  strings.TrimSpace(record.Description),
		MainCategory: strings.TrimSpace(record.MainCategory),
		SubCategory:  strings.TrimSpace(record.SubCategory),
		Tags:         normalizeTags(record.Tags),
		Language:     m.DetectLanguage(title + " " + contentText),
		AuthorEmail:  strings.TrimSpace(record.AuthorEmail),
		ViewCount:    max(record.ViewCount, 0),
		LikeCount:    max(record.LikeCount, 0),
		ReadingTime:  ReadingTime(len(strings.Fields(contentText))),
		ThumbnailURL: record.ThumbnailURL,
		CreatedDate:  record.CreatedAt,
		UpdatedDate:  updated,
	}, nil
}

// ExtractPlainText flattens rich content into a single line of text.
// Content may be a JSON node tree, a JSON scalar, or raw text that is not JSON at all.
func (m *Mapper) ExtractPlainText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}

	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.UseNumber()

	var node any
	if err := decoder.Decode(&node); err != nil || decoder.More() {
		return m.plainString(string(content))
	}

	switch n := node.(type) {
	case nil:
		return ""
	case string:
		return m.plainString(n)
	case json.Number:
		return n.String()
	case bool:
		return strconv.FormatBool(n)
	}

	var parts []string
	m.collectText(node, &parts)

	return normalizeWhitespace(strings.Join(parts, " "))
}

func (m *Mapper) plainString(s string) string {
	if !markupPattern.MatchString(s) {
		return s
	}

	// Tags are replaced by nothing, so give adjacent block elements a separator first.
	sanitized := m.policy.Sanitize(strings.ReplaceAll(s, "<", " <"))

	return normalizeWhitespace(html.UnescapeString(sanitized))
}

// collectText gathers "text" values and bare strings inside arrays, at any depth and under any key.
// Keys are visited in a fixed order so the output is stable.
func (m *Mapper) collectText(node any, parts *[]string) {
	switch n := node.(type) {
	case string:
		*parts = append(*parts, m.plainString(n))
	case []any:
		for _, child := range n {
			m.collectText(child, parts)
		}
	case map[string]any:
		if text, ok := n["text"].(string); ok {
			*parts = append(*parts, m.plainString(text))
		}
		for _, key := range childKeys(n) {
			switch n[key].(type) {
			case []any, map[string]any:
				m.collectText(n[key], parts)
			}
		}
	}
}

// childKeys lists the nested keys of a node, "content" and "children" first, the rest sorted.
func childKeys(node map[string]any) []string {
	keys := make([]string, 0, len(node))
	for _, key := range []string{"content", "children"} {
		if _, ok := node[key]; ok {
			keys = append(keys, key)
		}
	}
	for _, key := range slices.Sorted(maps.Keys(node)) {
		if key == "text" || key == "content" || key == "children" {
			continue
		}
		keys = append(keys, key)
	}

	return keys
}

// DetectLanguage reports "ko" when Hangul syllables make up more than the threshold share of letters.
func (m *Mapper) DetectLanguage(text string) string {
	var letters, hangul int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if r >= hangulSyllablesStart && r <= hangulSyllablesEnd {
			hangul++
		}
	}

	if letters == 0 {
		return models.LanguageEnglish
	}
	if float64(hangul)/float64(letters) > m.koreanRatioThreshold {
		return models.LanguageKorean
	}

	return models.LanguageEnglish
}

func ReadingTime(wordCount int) int {
	return max(1, wordCount/wordsPerMinute)
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		normalized = append(normalized, tag)
	}

	return normalized
}
