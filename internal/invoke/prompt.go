package invoke

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/mapping"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/plan"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed delimited_user.tmpl
var delimitedUserTmpl string

//go:embed structured_user.tmpl
var structuredUserTmpl string

var (
	delimitedTemplate  = template.Must(template.New("delimited").Parse(delimitedUserTmpl))
	structuredTemplate = template.Must(template.New("structured").Parse(structuredUserTmpl))
)

// SystemPrompt returns the system prompt shared by all extraction calls.
func SystemPrompt() string {
	return systemPrompt
}

type promptField struct {
	Name   string
	Prompt string
	Marker string
}

type promptData struct {
	Zone     string
	ZoneText string
	Fields   []promptField
}

// UserPrompt builds the user prompt for one planned batch. Delimited
// batches instruct the model to emit marker lines; structured batches ask
// for a single JSON object.
func UserPrompt(b plan.Batch) (string, error) {
	data := promptData{
		Zone:     b.Zone,
		ZoneText: b.ZoneText,
		Fields:   make([]promptField, 0, len(b.Fields)),
	}
	for _, f := range b.Fields {
		data.Fields = append(data.Fields, promptField{
			Name:   f.Name,
			Prompt: f.Prompt,
			Marker: mapping.Marker(f.Name),
		})
	}

	tmpl := delimitedTemplate
	if b.Structured {
		tmpl = structuredTemplate
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt for batch %s: %w", b.Name, err)
	}
	return buf.String(), nil
}
