package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Issue describes a single field that did not conform to its schema.
type Issue struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Received string `json:"received"`
	Value    any    `json:"value,omitempty"`
}

func (i Issue) String() string {
	field := i.Field
	if field == "" {
		field = "(root)"
	}
	return fmt.Sprintf("%s: expected %s, received %s", field, i.Expected, i.Received)
}

// ValidationError is returned by the row validators. It lists every offending
// field of the input, not only the first one.
type ValidationError struct {
	Schema string  `json:"schema"`
	Issues []Issue `json:"issues"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.String())
	}
	return fmt.Sprintf("invalid %s: %s", e.Schema, strings.Join(parts, "; "))
}

// Fields returns the names of the offending fields in report order.
func (e *ValidationError) Fields() []string {
	out := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		out = append(out, is.Field)
	}
	return out
}

type fieldKind string

const (
	kindString fieldKind = "string"
	kindNumber fieldKind = "number"
)

type field struct {
	name string
	kind fieldKind
}

// objectSchema is a flat record shape: a fixed set of required, typed fields.
// Keys not listed in fields are ignored.
type objectSchema struct {
	name   string
	fields []field
}

// numberDecoder keeps integers exact when raw JSON is handed to a validator.
var numberDecoder = jsoniter.Config{UseNumber: true}.Froze()

// parse checks input against the schema and returns the accepted values keyed
// by field name, already converted to string / float64.
func (s objectSchema) parse(input any) (map[string]any, error) {
	obj, received, ok := asObject(input)
	if !ok {
		return nil, &ValidationError{Schema: s.name, Issues: []Issue{{Expected: "object", Received: received}}}
	}

	out := make(map[string]any, len(s.fields))
	var issues []Issue
	for _, f := range s.fields {
		raw, present := obj[f.name]
		if !present {
			issues = append(issues, Issue{Field: f.name, Expected: string(f.kind), Received: "undefined"})
			continue
		}
		// Pointer fields read the same as the value they point to, as they
		// do once a struct is seen through its JSON form.
		raw = deref(raw)
		switch f.kind {
		case kindString:
			if v, ok := raw.(string); ok {
				out[f.name] = v
				continue
			}
		case kindNumber:
			if v, ok := asNumber(raw); ok {
				out[f.name] = v
				continue
			}
		}
		issues = append(issues, Issue{Field: f.name, Expected: string(f.kind), Received: typeName(raw), Value: printable(raw)})
	}
	if len(issues) > 0 {
		return nil, &ValidationError{Schema: s.name, Issues: issues}
	}
	return out, nil
}

// asObject turns input into a string-keyed map. The second return value is the
// type name reported when input is not an object.
func asObject(input any) (map[string]any, string, bool) {
	switch v := input.(type) {
	case nil:
		return nil, "null", false
	case map[string]any:
		return v, "", true
	case json.RawMessage:
		return decodeObject(v)
	case []byte:
		return decodeObject(v)
	case string, bool, json.Number:
		return nil, typeName(v), false
	}

	rv := reflect.ValueOf(input)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, "null", false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, rv.Type().String(), false
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, "", true
	case reflect.Struct:
		// Typed records and other tagged structs are seen through their JSON form.
		b, err := numberDecoder.Marshal(rv.Interface())
		if err != nil {
			return nil, rv.Type().String(), false
		}
		return decodeObject(b)
	default:
		return nil, typeName(rv.Interface()), false
	}
}

func decodeObject(b []byte) (map[string]any, string, bool) {
	b = bytes.TrimSpace(b)
	var v any
	if err := numberDecoder.Unmarshal(b, &v); err != nil {
		return nil, "malformed JSON", false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, typeName(v), false
	}
	return obj, "", true
}

func asNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// typeName reports v using JSON vocabulary so issues read the same whether the
// input came from a decoded payload or from Go values.
func typeName(v any) string {
	if v == nil {
		return "null"
	}
	switch n := v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return numberName(n)
	case float64:
		return floatName(n)
	case float32:
		return floatName(float64(n))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return rv.Type().String()
		}
		return "object"
	case reflect.Struct:
		return "object"
	case reflect.Pointer:
		if rv.IsNil() {
			return "null"
		}
		return typeName(rv.Elem().Interface())
	default:
		return rv.Type().String()
	}
}

// numberName reports a json.Number that did not parse to a finite float64.
func numberName(n json.Number) string {
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) && math.IsInf(f, 0) {
			return "infinity"
		}
		return "invalid number"
	}
	return floatName(f)
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func floatName(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 0):
		return "infinity"
	default:
		return "number"
	}
}

// printable drops values that cannot be rendered back as JSON.
func printable(v any) any {
	switch n := v.(type) {
	case nil:
		return nil
	case string, bool:
		return n
	case json.Number:
		if numberName(n) != "number" {
			return nil
		}
		return n
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
		return n
	case float32:
		return printable(float64(n))
	}
	if _, ok := asNumber(v); ok {
		return v
	}
	return nil
}
