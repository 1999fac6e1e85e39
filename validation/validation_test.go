package validation

import (
	"testing"
	"time"

	"github.com/meghashyamc/searchsync/logger"
	"github.com/stretchr/testify/require"
)

type searchParams struct {
	Query    string `form:"query"`
	Sort     string `form:"sort" validate:"valid_sort"`
	Language string `form:"language" validate:"valid_language"`
	Tags     string `form:"tags" validate:"valid_tags"`
	DateFrom string `form:"date_from" validate:"valid_date,not_after=DateTo"`
	DateTo   string `form:"date_to" validate:"valid_date"`
	PageSize int    `form:"page_size" validate:"min=0,max=100"`
}

type syncParams struct {
	Incremental bool `json:"incremental"`
	ForceAll    bool `json:"force_all" validate:"exclusive_with=Incremental"`
}

type autocompleteParams struct {
	Q string `form:"q" validate:"required,valid_query,max=100"`
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		input   any
		wantErr string
	}{
		{name: "empty search", input: searchParams{}},
		{name: "full search", input: searchParams{Query: "django", Sort: "date_desc", Language: "ko", Tags: "a,b", DateFrom: "2024-01-01", DateTo: "2024-01-01T10:00:00Z", PageSize: 20}},
		{name: "same day range", input: searchParams{DateFrom: "2024-01-31T12:00:00Z", DateTo: "2024-01-31"}},
		{name: "unknown sort", input: searchParams{Sort: "random"}, wantErr: "sort must be one of"},
		{name: "unknown language", input: searchParams{Language: "fr"}, wantErr: "language must be one of"},
		{name: "too many tags", input: searchParams{Tags: "1,2,3,4,5,6,7,8,9,10,11"}, wantErr: "at most 10 tags"},
		{name: "bad date", input: searchParams{DateFrom: "01/02/2024"}, wantErr: "dates must be"},
		{name: "inverted range", input: searchParams{DateFrom: "2024-02-01", DateTo: "2024-01-01"}, wantErr: "date_from must not be after date_to"},
		{name: "page size too large", input: searchParams{PageSize: 101}, wantErr: "'page_size' is not in the expected range"},
		{name: "incremental only", input: syncParams{Incremental: true}},
		{name: "force all only", input: syncParams{ForceAll: true}},
		{name: "incremental and force all", input: syncParams{Incremental: true, ForceAll: true}, wantErr: "incremental and force_all"},
		{name: "missing autocomplete prefix", input: autocompleteParams{}, wantErr: "missing required field 'q'"},
		{name: "blank autocomplete prefix", input: autocompleteParams{Q: "  "}, wantErr: "invalid query"},
	}

	validator, err := New(logger.Discard())
	require.NoError(t, err)

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			err := validator.Validate(tc.input)
			if tc.wantErr == "" {
				assert.NoError(err)
				return
			}
			assert.ErrorContains(err, tc.wantErr)
		})
	}
}

func TestParseDate(t *testing.T) {
	assert := require.New(t)

	parsed, err := ParseDate("2024-01-31", false)
	assert.NoError(err)
	assert.Equal(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), *parsed)

	parsed, err = ParseDate("2024-01-31", true)
	assert.NoError(err)
	assert.Equal(time.Date(2024, 1, 31, 23, 59, 59, 999999999, time.UTC), *parsed)

	parsed, err = ParseDate("", true)
	assert.NoError(err)
	assert.Nil(parsed)

	_, err = ParseDate("yesterday", false)
	assert.Error(err)
}

func TestSplitTags(t *testing.T) {
	require.Equal(t, []string{"Django", "Python"}, SplitTags(" Django, ,Python,"))
	require.Nil(t, SplitTags(""))
}
