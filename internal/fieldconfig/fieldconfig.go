// Package fieldconfig loads the declarative extraction-field specification.
// Fields are declared in YAML together with the batches that group them;
// the model is loaded once per run and is immutable afterwards.
package fieldconfig

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/segment"
)

// OutputType tags the expected shape of one field's value.
type OutputType string

const (
	// OutputShortText expects a single-line value.
	OutputShortText OutputType = "short_text"
	// OutputLongText expects free prose of any length.
	OutputLongText OutputType = "long_text"
	// OutputStructured expects a JSON value.
	OutputStructured OutputType = "structured"
)

// Valid reports whether t is a known output type.
func (t OutputType) Valid() bool {
	switch t {
	case OutputShortText, OutputLongText, OutputStructured:
		return true
	}
	return false
}

// ConfigError reports a malformed or inconsistent field specification.
// It is fatal for the whole run and surfaced before any document is
// processed.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("field config: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("field config: %s", e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func errf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// FieldSpec is one configured extraction target. Name maps to a record
// store column.
type FieldSpec struct {
	Name             string     `yaml:"name"`
	Enabled          bool       `yaml:"enabled"`
	Type             OutputType `yaml:"type"`
	Prompt           string     `yaml:"prompt"`
	Batch            string     `yaml:"batch"`
	ContextScope     string     `yaml:"context_scope"`
	StructuredOutput bool       `yaml:"structured_output"`
}

// BatchSpec declares a batch and its default context scope.
type BatchSpec struct {
	Name             string `yaml:"name"`
	ContextScope     string `yaml:"context_scope"`
	StructuredOutput bool   `yaml:"structured_output"`
}

// rawField mirrors FieldSpec with optional booleans so absent keys get
// their documented defaults (enabled: true).
type rawField struct {
	Name             string     `yaml:"name"`
	Enabled          *bool      `yaml:"enabled"`
	Type             OutputType `yaml:"type"`
	Prompt           string     `yaml:"prompt"`
	Batch            string     `yaml:"batch"`
	ContextScope     string     `yaml:"context_scope"`
	StructuredOutput bool       `yaml:"structured_output"`
}

type rawConfig struct {
	Batches []BatchSpec `yaml:"batches"`
	Fields  []rawField  `yaml:"fields"`
}

// Model is the loaded field configuration: every declared field in file
// order plus the declared batches. Disabled fields are retained for
// visibility but excluded from planning.
type Model struct {
	fields  []FieldSpec
	byName  map[string]int
	batches map[string]BatchSpec
}

// Load parses a declarative field specification. It fails with a
// *ConfigError on unparseable YAML, duplicate field names, unknown output
// types or zones, enabled fields without prompts, fields whose batch is
// undeclared and that carry no explicit scope, or batches mixing explicit
// and implicit context scopes.
func Load(data []byte) (*Model, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Msg: "unparseable specification", Err: err}
	}
	if len(raw.Fields) == 0 {
		return nil, errf("no fields declared")
	}

	m := &Model{
		byName:  make(map[string]int, len(raw.Fields)),
		batches: make(map[string]BatchSpec, len(raw.Batches)),
	}

	for _, b := range raw.Batches {
		if b.Name == "" {
			return nil, errf("batch with empty name")
		}
		if _, dup := m.batches[b.Name]; dup {
			return nil, errf("duplicate batch %q", b.Name)
		}
		if b.ContextScope != "" && !segment.KnownZone(b.ContextScope) {
			return nil, errf("batch %q: unknown context scope %q", b.Name, b.ContextScope)
		}
		m.batches[b.Name] = b
	}

	for _, rf := range raw.Fields {
		f, err := normalizeField(rf, m.batches)
		if err != nil {
			return nil, err
		}
		if _, dup := m.byName[f.Name]; dup {
			return nil, errf("duplicate field %q", f.Name)
		}
		m.byName[f.Name] = len(m.fields)
		m.fields = append(m.fields, f)
	}

	if err := m.checkScopeConsistency(); err != nil {
		return nil, err
	}
	return m, nil
}

func normalizeField(rf rawField, batches map[string]BatchSpec) (FieldSpec, error) {
	f := FieldSpec{
		Name:             rf.Name,
		Enabled:          rf.Enabled == nil || *rf.Enabled,
		Type:             rf.Type,
		Prompt:           rf.Prompt,
		Batch:            rf.Batch,
		ContextScope:     rf.ContextScope,
		StructuredOutput: rf.StructuredOutput,
	}

	if f.Name == "" {
		return f, errf("field with empty name")
	}
	if f.Type == "" {
		f.Type = OutputLongText
	}
	if !f.Type.Valid() {
		return f, errf("field %q: unknown output type %q", f.Name, f.Type)
	}
	if f.Batch == "" {
		return f, errf("field %q: no batch assigned", f.Name)
	}
	if f.Enabled && f.Prompt == "" {
		return f, errf("field %q: enabled field has no prompt", f.Name)
	}
	if f.ContextScope != "" && !segment.KnownZone(f.ContextScope) {
		return f, errf("field %q: unknown context scope %q", f.Name, f.ContextScope)
	}
	if f.ContextScope == "" {
		b, declared := batches[f.Batch]
		if !declared || b.ContextScope == "" {
			return f, errf("field %q: batch %q declares no context scope and field has none", f.Name, f.Batch)
		}
	}
	return f, nil
}

// checkScopeConsistency rejects batches that mix explicit field-level
// scopes with batch defaults, or whose explicit scopes disagree. All
// fields of a batch must resolve to the same zone.
func (m *Model) checkScopeConsistency() error {
	type batchScopes struct {
		explicit map[string]bool
		implicit bool
	}
	seen := make(map[string]*batchScopes)

	for _, f := range m.fields {
		if !f.Enabled {
			continue
		}
		bs, ok := seen[f.Batch]
		if !ok {
			bs = &batchScopes{explicit: make(map[string]bool)}
			seen[f.Batch] = bs
		}
		if f.ContextScope == "" {
			bs.implicit = true
		} else {
			bs.explicit[f.ContextScope] = true
		}
	}

	for name, bs := range seen {
		if len(bs.explicit) > 0 && bs.implicit {
			return errf("batch %q mixes explicit and implicit context scopes", name)
		}
		if len(bs.explicit) > 1 {
			return errf("batch %q has conflicting explicit context scopes", name)
		}
	}
	return nil
}

// Fields returns every declared field in file order, disabled included.
func (m *Model) Fields() []FieldSpec {
	out := make([]FieldSpec, len(m.fields))
	copy(out, m.fields)
	return out
}

// EnabledFields returns the enabled fields in file order.
func (m *Model) EnabledFields() []FieldSpec {
	var out []FieldSpec
	for _, f := range m.fields {
		if f.Enabled {
			out = append(out, f)
		}
	}
	return out
}

// Field returns the named field spec.
func (m *Model) Field(name string) (FieldSpec, bool) {
	idx, ok := m.byName[name]
	if !ok {
		return FieldSpec{}, false
	}
	return m.fields[idx], true
}

// Batch returns the declared batch spec, if any.
func (m *Model) Batch(name string) (BatchSpec, bool) {
	b, ok := m.batches[name]
	return b, ok
}
