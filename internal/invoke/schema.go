package invoke

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/plan"
)

// BatchSchema builds the JSON schema a structured batch is constrained to:
// one required string property per field, keyed by the configured field
// name. Values the model cannot answer come back as empty strings, which
// the mapper turns into missing results.
func BatchSchema(b plan.Batch) (json.RawMessage, error) {
	properties := make(map[string]any, len(b.Fields))
	required := make([]string, 0, len(b.Fields))

	for _, f := range b.Fields {
		properties[f.Name] = map[string]any{
			"type":        "string",
			"description": f.Prompt,
		}
		required = append(required, f.Name)
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema for batch %s: %w", b.Name, err)
	}
	return raw, nil
}

var schemaNamePattern = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SchemaName derives a provider-safe schema identifier from the batch name.
func SchemaName(batch string) string {
	name := schemaNamePattern.ReplaceAllString(strings.TrimSpace(batch), "_")
	if name == "" {
		return "extraction"
	}
	return name
}
