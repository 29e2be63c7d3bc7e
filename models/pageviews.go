package models

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// DailyPageViewRow is one bucket of the daily per-URL page view series.
type DailyPageViewRow struct {
	Date  string  `json:"date"`
	URL   string  `json:"url"`
	Views float64 `json:"views"`
}

// PageviewsCountRow is the aggregate page view count over a range.
type PageviewsCountRow struct {
	Total float64 `json:"total"`
}

const (
	DailyPageViewRowName  = "DailyPageViewRow"
	PageviewsCountRowName = "PageviewsCountRow"
)

var dailyPageViewRowSchema = objectSchema{
	name: DailyPageViewRowName,
	fields: []field{
		{name: "date", kind: kindString},
		{name: "url", kind: kindString},
		{name: "views", kind: kindNumber},
	},
}

var pageviewsCountRowSchema = objectSchema{
	name: PageviewsCountRowName,
	fields: []field{
		{name: "total", kind: kindNumber},
	},
}

// ValidateDailyPageViewRow checks an untrusted value (typically a raw query
// result row) and returns it as a typed record. Unknown keys are dropped.
func ValidateDailyPageViewRow(input any) (DailyPageViewRow, error) {
	v, err := dailyPageViewRowSchema.parse(input)
	if err != nil {
		return DailyPageViewRow{}, err
	}
	return DailyPageViewRow{
		Date:  v["date"].(string),
		URL:   v["url"].(string),
		Views: v["views"].(float64),
	}, nil
}

// ValidateCountRow checks an untrusted value against the PageviewsCountRow shape.
func ValidateCountRow(input any) (PageviewsCountRow, error) {
	v, err := pageviewsCountRowSchema.parse(input)
	if err != nil {
		return PageviewsCountRow{}, err
	}
	return PageviewsCountRow{Total: v["total"].(float64)}, nil
}

// DailyPageViewRowSchema describes DailyPageViewRow as an OpenAPI schema.
func DailyPageViewRowSchema() *openapi3.Schema {
	return dailyPageViewRowSchema.openAPI()
}

// PageviewsCountRowSchema describes PageviewsCountRow as an OpenAPI schema.
func PageviewsCountRowSchema() *openapi3.Schema {
	return pageviewsCountRowSchema.openAPI()
}

func (s objectSchema) openAPI() *openapi3.Schema {
	out := openapi3.NewObjectSchema()
	out.Title = s.name
	required := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		switch f.kind {
		case kindString:
			out.WithProperty(f.name, openapi3.NewStringSchema())
		case kindNumber:
			out.WithProperty(f.name, openapi3.NewFloat64Schema())
		}
		required = append(required, f.name)
	}
	out.Required = required
	return out
}
