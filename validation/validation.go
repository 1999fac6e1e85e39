package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator"
	"github.com/meghashyamc/searchsync/logger"
	"github.com/meghashyamc/searchsync/models"
)

const (
	MaxTags = 10

	dateLayout = "2006-01-02"
)

type Validator struct {
	validator                *validator.Validate
	logger                   logger.Logger
	tagValidationDetailsOnce sync.Once
	tagValidationDetailsMap  map[string]tagValidationDetails
}

type tagValidationDetails struct {
	validatorFunc validator.Func
	err           error
}

func New(logger logger.Logger) (*Validator, error) {
	validator := &Validator{validator: validator.New(), logger: logger}
	validator.validator.RegisterTagNameFunc(useJSONFieldNames)
	if err := validator.registerCustomValidatorsForTags(); err != nil {
		return nil, err
	}

	return validator, nil
}

func (v *Validator) Validate(i any) error {

	if err := v.validator.Struct(i); err != nil {
		v.logger.Warn("validation failed", "err", err.Error())
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {

			tagValidationDetails, ok := v.getTagValidationDetails()[validationErrs[0].Tag()]
			if ok {
				return tagValidationDetails.err
			}

			switch validationErrs[0].Tag() {
			case "required":
				return fmt.Errorf("missing required field '%s'", validationErrs[0].Field())

			case "min", "max":
				return fmt.Errorf("value or length of field '%s' is not in the expected range", validationErrs[0].Field())

			}
		}
		return err
	}
	return nil
}

func (v *Validator) getTagValidationDetails() map[string]tagValidationDetails {
	v.tagValidationDetailsOnce.Do(func() {
		v.tagValidationDetailsMap = map[string]tagValidationDetails{
			"valid_query":    {validatorFunc: v.isValidQuery, err: errors.New("invalid query")},
			"valid_sort":     {validatorFunc: v.isValidSort, err: errors.New("sort must be one of relevance, date_desc, date_asc, views_desc, likes_desc")},
			"valid_language": {validatorFunc: v.isValidLanguage, err: errors.New("language must be one of ko, en, all")},
			"valid_tags":     {validatorFunc: v.isValidTags, err: fmt.Errorf("at most %d tags are allowed", MaxTags)},
			"valid_date":     {validatorFunc: v.isValidDate, err: errors.New("dates must be RFC3339 or YYYY-MM-DD")},
			"not_after":      {validatorFunc: v.isNotAfter, err: errors.New("date_from must not be after date_to")},
			"exclusive_with": {validatorFunc: v.isExclusiveWith, err: errors.New("incremental and force_all cannot be used together")},
		}
	})
	return v.tagValidationDetailsMap
}

func (v *Validator) registerCustomValidatorsForTags() error {

	tagValidationDetailsMap := v.getTagValidationDetails()

	for tag, tagValidationDetails := range tagValidationDetailsMap {
		if err := v.validator.RegisterValidation(tag, tagValidationDetails.validatorFunc); err != nil {
			v.logger.Error("failed to register customer validator function", "err", err.Error())
			return err
		}
	}
	return nil
}

func useJSONFieldNames(fld reflect.StructField) string {
	tag := fld.Tag.Get("json")
	if tag == "" {
		tag = fld.Tag.Get("form")
	}
	name := strings.SplitN(tag, ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// ParseDate accepts RFC3339 or a bare date. A bare date used as an upper bound covers the whole day.
func ParseDate(value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}

	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", value, err)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// SplitTags splits a comma separated list, dropping blanks.
func SplitTags(value string) []string {
	var tags []string
	for _, tag := range strings.Split(value, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func (v *Validator) isValidQuery(fl validator.FieldLevel) bool {
	query := fl.Field().String()
	if len(query) == 0 {
		return false
	}
	if strings.TrimSpace(query) == "" {
		v.logger.Warn("query is empty", "query", query)
		return false
	}

	return true
}

func (v *Validator) isValidSort(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", models.SortRelevance, models.SortDateDesc, models.SortDateAsc, models.SortViewsDesc, models.SortLikesDesc:
		return true
	default:
		return false
	}
}

func (v *Validator) isValidLanguage(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", models.LanguageKorean, models.LanguageEnglish, models.LanguageAll:
		return true
	default:
		return false
	}
}

func (v *Validator) isValidTags(fl validator.FieldLevel) bool {
	return len(SplitTags(fl.Field().String())) <= MaxTags
}

func (v *Validator) isValidDate(fl validator.FieldLevel) bool {
	_, err := ParseDate(fl.Field().String(), false)
	return err == nil
}

// isNotAfter compares the field with the sibling date field named by the tag parameter.
func (v *Validator) isNotAfter(fl validator.FieldLevel) bool {
	other := fl.Parent().FieldByName(fl.Param())
	if !other.IsValid() || other.Kind() != reflect.String {
		return true
	}

	from, err := ParseDate(fl.Field().String(), false)
	if err != nil || from == nil {
		return true
	}
	to, err := ParseDate(other.String(), true)
	if err != nil || to == nil {
		return true
	}

	return !from.After(*to)
}

// isExclusiveWith fails when both the field and the boolean sibling named by the tag parameter are set.
func (v *Validator) isExclusiveWith(fl validator.FieldLevel) bool {
	other := fl.Parent().FieldByName(fl.Param())
	if !other.IsValid() || other.Kind() != reflect.Bool || fl.Field().Kind() != reflect.Bool {
		return true
	}

	return !(fl.Field().Bool() && other.Bool())
}
