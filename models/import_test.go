package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportRowValidate(t *testing.T) {
	ok := NewImportRow(DailyPageViewRow{Date: "2024-01-01", URL: "/home", Views: 42})
	require.NoError(t, ok.Validate())

	day, err := ok.Day()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local), day)
	assert.Equal(t, int64(42), ok.Count())
}

func TestImportRowRejects(t *testing.T) {
	cases := map[string]struct {
		row      ImportRow
		field    string
		expected string
	}{
		"bad date":   {ImportRow{Date: "01/02/2024", URL: "/", Views: 1}, "date", "datetime=2006-01-02"},
		"empty url":  {ImportRow{Date: "2024-01-01", URL: "", Views: 1}, "url", "required"},
		"negative":   {ImportRow{Date: "2024-01-01", URL: "/", Views: -1}, "views", "gte=0"},
		"fractional": {ImportRow{Date: "2024-01-01", URL: "/", Views: 1.5}, "views", "whole"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.row.Validate()
			verr := requireValidationError(t, err)
			assert.Equal(t, ImportRowName, verr.Schema)
			require.Len(t, verr.Issues, 1)
			assert.Equal(t, tc.field, verr.Issues[0].Field)
			assert.Equal(t, tc.expected, verr.Issues[0].Expected)
		})
	}
}

func TestImportValidatorRegistersWhole(t *testing.T) {
	var v = importValidator
	require.NotPanics(t, func() { v = newImportValidator() })
	assert.NoError(t, v.Var(3.0, "whole"))
	assert.Error(t, v.Var(2.5, "whole"))
}
