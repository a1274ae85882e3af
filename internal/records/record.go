// Package records talks to the Airtable record store: fetching pending
// studies, writing extracted fields back, and downloading source PDFs.
package records

import "strings"

// Processing status values written to the record store.
const (
	StatusProcessing = "Processing"
	StatusComplete   = "Complete"
	StatusFailed     = "Failed"
)

// Field names the pipeline itself reads or writes. Extraction fields come
// from the field configuration; these are fixed store columns.
const (
	FieldPDF       = "PDF"
	FieldSourceURL = "DOI/URL"
	FieldStatus    = "Processing Status"
	FieldError     = "Error"
)

// Attachment is one file attached to a record.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

// Record is one row of the study table.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Str returns a field value as a trimmed string, empty when absent or not
// a string.
func (r Record) Str(name string) string {
	v, ok := r.Fields[name]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// PDFURL returns the URL of the first PDF attachment, if any.
func (r Record) PDFURL() (string, bool) {
	v, ok := r.Fields[FieldPDF]
	if !ok {
		return "", false
	}
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return "", false
	}
	first, ok := list[0].(map[string]any)
	if !ok {
		return "", false
	}
	url, ok := first["url"].(string)
	if !ok || strings.TrimSpace(url) == "" {
		return "", false
	}
	return url, true
}

// SourceURL returns the record's DOI or source URL field.
func (r Record) SourceURL() string {
	return r.Str(FieldSourceURL)
}
