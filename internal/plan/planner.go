// Package plan groups enabled extraction fields into ordered LLM call
// batches against a segmented document's zones.
package plan

import (
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/fieldconfig"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/segment"
)

// Batch is one planned LLM call: a named group of fields sharing a single
// resolved zone.
type Batch struct {
	Name       string
	Zone       string
	ZoneText   string
	Structured bool
	Fields     []fieldconfig.FieldSpec
}

// Plan produces the ordered batch sequence for one document. Every enabled
// field appears in exactly one batch; batch order follows first appearance
// in the configuration file so audit logs stay reproducible across runs.
// An empty zone is valid input: the batch is still planned with empty
// context text.
func Plan(m *fieldconfig.Model, doc *segment.Document) ([]Batch, error) {
	var order []string
	grouped := make(map[string][]fieldconfig.FieldSpec)

	for _, f := range m.EnabledFields() {
		if _, seen := grouped[f.Batch]; !seen {
			order = append(order, f.Batch)
		}
		grouped[f.Batch] = append(grouped[f.Batch], f)
	}

	batches := make([]Batch, 0, len(order))
	for _, name := range order {
		fields := grouped[name]

		zone, err := resolveZone(m, name, fields)
		if err != nil {
			return nil, err
		}

		var zoneText string
		if z, ok := doc.Zone(zone); ok {
			zoneText = z.Text
		}

		structured := false
		if b, declared := m.Batch(name); declared {
			structured = b.StructuredOutput
		}
		for _, f := range fields {
			if f.StructuredOutput {
				structured = true
			}
		}

		batches = append(batches, Batch{
			Name:       name,
			Zone:       zone,
			ZoneText:   zoneText,
			Structured: structured,
			Fields:     fields,
		})
	}

	return batches, nil
}

// resolveZone picks the batch's zone: field-level explicit scope wins over
// the batch declaration. The configuration loader guarantees consistency,
// so the first field's scope speaks for the batch.
func resolveZone(m *fieldconfig.Model, batch string, fields []fieldconfig.FieldSpec) (string, error) {
	for _, f := range fields {
		if f.ContextScope != "" {
			return f.ContextScope, nil
		}
	}
	if b, declared := m.Batch(batch); declared && b.ContextScope != "" {
		return b.ContextScope, nil
	}
	return "", &fieldconfig.ConfigError{Msg: "batch " + batch + ": no context scope resolves"}
}
