package models

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ImportRowName is the schema name used in import constraint errors.
const ImportRowName = "ImportRow"

// maxImportViews keeps imported counts exactly representable in both float64 and BIGINT.
const maxImportViews = 1<<53 - 1

// ImportRow carries the constraints an externally supplied daily row must meet
// before it is written to page_views. They are stricter than DailyPageViewRow.
type ImportRow struct {
	Date  string  `json:"date" validate:"required,datetime=2006-01-02"`
	URL   string  `json:"url" validate:"required,max=255"`
	Views float64 `json:"views" validate:"gte=0,lte=9007199254740991,whole"`
}

var importValidator = newImportValidator()

func newImportValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("whole", isWhole); err != nil {
		panic(fmt.Sprintf("register whole validation: %v", err))
	}
	return v
}

func isWhole(fl validator.FieldLevel) bool {
	f := fl.Field().Float()
	return f == math.Trunc(f)
}

// NewImportRow converts an already validated DailyPageViewRow.
func NewImportRow(r DailyPageViewRow) ImportRow {
	return ImportRow{Date: r.Date, URL: r.URL, Views: r.Views}
}

// Validate applies the import constraints and reports violations as a ValidationError.
func (r ImportRow) Validate() error {
	err := importValidator.Struct(r)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	issues := make([]Issue, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		expected := fe.Tag()
		if fe.Param() != "" {
			expected += "=" + fe.Param()
		}
		issues = append(issues, Issue{
			Field:    fe.Field(),
			Expected: expected,
			Received: fmt.Sprintf("%v", fe.Value()),
			Value:    fe.Value(),
		})
	}
	return &ValidationError{Schema: ImportRowName, Issues: issues}
}

// Day parses Date; call it only after Validate succeeded.
func (r ImportRow) Day() (time.Time, error) {
	return time.ParseInLocation("2006-01-02", r.Date, time.Local)
}

// Count returns Views as a storage count.
func (r ImportRow) Count() int64 {
	if r.Views > maxImportViews {
		return maxImportViews
	}
	return int64(r.Views)
}
