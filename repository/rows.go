package repository

import (
	"database/sql"
	"strconv"
	"strings"
	"time"
)

// scanRows reads every row into a column-name keyed map holding plain values
// (string, float64, bool, nil), the shape the row validators expect from a
// query result. Nothing is type-checked here.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col.Name()] = normalizeValue(col.DatabaseTypeName(), values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalizeValue converts a driver value into a JSON-like value. Text is only
// turned into a number when the column type is numeric (DECIMAL sums arrive
// as bytes from the MySQL driver).
func normalizeValue(dbType string, v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return normalizeText(dbType, string(t))
	case string:
		return normalizeText(dbType, t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case int:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case time.Time:
		if isDateType(dbType) {
			return t.Format(DateLayout)
		}
		return t.Format(time.RFC3339)
	default:
		return v
	}
}

func normalizeText(dbType, s string) any {
	if isNumericType(dbType) {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return s
}

func isNumericType(dbType string) bool {
	switch strings.TrimPrefix(strings.ToUpper(dbType), "UNSIGNED ") {
	case "DECIMAL", "NUMERIC", "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "FLOAT", "DOUBLE", "REAL":
		return true
	}
	return false
}

func isDateType(dbType string) bool {
	return strings.EqualFold(dbType, "DATE")
}
