// Package mapping turns raw model output into per-field results. It owns
// the delimiter wire format for multi-field batch responses and the JSON
// handling for structured batches.
package mapping

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/fieldconfig"
)

// Status tags the outcome of mapping one field.
type Status string

const (
	// StatusOK means the field value was found and passed its shape check.
	StatusOK Status = "ok"
	// StatusMissing means the response carried no usable value for the field.
	StatusMissing Status = "missing"
	// StatusMalformed means a value was present but failed its shape check.
	StatusMalformed Status = "malformed"
)

// FieldResult is the mapped value for one configured field. Raw preserves
// the response segment the value was cut from so failures stay debuggable.
type FieldResult struct {
	Name   string
	Value  string
	Raw    string
	Status Status
}

// Marker returns the delimiter line that precedes a field's answer in a
// multi-field batch response.
func Marker(name string) string {
	return "<<<FIELD:" + name + ">>>"
}

var markerPattern = regexp.MustCompile(`(?m)^[ \t]*<<<FIELD:([^>]+)>>>[ \t]*$`)

// MapDelimited splits a delimiter-formatted batch response into per-field
// results. Fields absent from the response come back missing; text before
// the first marker is ignored. Every configured field gets exactly one
// result, in configuration order.
func MapDelimited(content string, fields []fieldconfig.FieldSpec) []FieldResult {
	sections := splitSections(content)

	results := make([]FieldResult, 0, len(fields))
	for _, f := range fields {
		raw, ok := sections[f.Name]
		if !ok {
			results = append(results, FieldResult{Name: f.Name, Status: StatusMissing})
			continue
		}
		results = append(results, checkShape(f, raw))
	}
	return results
}

// splitSections cuts the response at marker lines and returns each field's
// text segment. A repeated marker keeps the last occurrence.
func splitSections(content string) map[string]string {
	matches := markerPattern.FindAllStringSubmatchIndex(content, -1)
	sections := make(map[string]string, len(matches))

	for i, m := range matches {
		name := strings.TrimSpace(content[m[2]:m[3]])
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections[name] = strings.TrimSpace(content[m[1]:end])
	}
	return sections
}

// MapStructured parses a structured (JSON) batch response and maps each
// configured field from its property. The payload is repaired from code
// fences and surrounding prose before parsing; if a schema is given the
// parsed document is validated against it and a validation failure marks
// every field malformed.
func MapStructured(content string, fields []fieldconfig.FieldSpec, schema json.RawMessage) []FieldResult {
	parsed, err := parseJSONOutput(content)
	if err != nil {
		return allWith(fields, StatusMalformed, strings.TrimSpace(content))
	}
	if err := validateAgainstSchema(schema, parsed); err != nil {
		return allWith(fields, StatusMalformed, string(parsed))
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(parsed, &doc); err != nil {
		return allWith(fields, StatusMalformed, string(parsed))
	}

	results := make([]FieldResult, 0, len(fields))
	for _, f := range fields {
		raw, ok := doc[f.Name]
		if !ok || string(raw) == "null" {
			results = append(results, FieldResult{Name: f.Name, Status: StatusMissing})
			continue
		}
		value, err := stringifyValue(raw)
		if err != nil {
			results = append(results, FieldResult{Name: f.Name, Raw: string(raw), Status: StatusMalformed})
			continue
		}
		results = append(results, checkShape(f, value))
	}
	return results
}

// Failed maps a batch whose invocation never produced content: every field
// comes back missing so downstream writes skip them uniformly.
func Failed(fields []fieldconfig.FieldSpec) []FieldResult {
	return allWith(fields, StatusMissing, "")
}

func allWith(fields []fieldconfig.FieldSpec, status Status, raw string) []FieldResult {
	results := make([]FieldResult, 0, len(fields))
	for _, f := range fields {
		results = append(results, FieldResult{Name: f.Name, Raw: raw, Status: status})
	}
	return results
}

// checkShape applies the field's output type contract to a candidate value.
func checkShape(f fieldconfig.FieldSpec, raw string) FieldResult {
	value := strings.TrimSpace(raw)
	res := FieldResult{Name: f.Name, Value: value, Raw: raw}

	if value == "" {
		res.Value = ""
		res.Status = StatusMissing
		return res
	}

	switch f.Type {
	case fieldconfig.OutputShortText:
		if strings.ContainsAny(value, "\n\r") {
			res.Status = StatusMalformed
			return res
		}
	case fieldconfig.OutputStructured:
		if !json.Valid([]byte(value)) {
			res.Status = StatusMalformed
			return res
		}
	}

	res.Status = StatusOK
	return res
}

// stringifyValue renders one JSON property as the cell value: strings pass
// through, scalars print plainly, objects and arrays stay JSON.
func stringifyValue(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		b, err := json.Marshal(v)
		return string(b), err
	}
}

// FieldNames returns the mapped names in result order, handy for logs.
func FieldNames(results []FieldResult) []string {
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	return names
}
