// Package audit provides append-only usage recording for LLM invocations.
// Every call attempt is recorded with its token counts and outcome so a
// run's cost and failure history can be reconstructed from the trail.
package audit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry represents one recorded LLM invocation attempt.
type Entry struct {
	// Unique identifier
	ID string `json:"id"`

	// Attribution
	RecordID     string `json:"record_id,omitempty"`
	Batch        string `json:"batch"`
	ContextScope string `json:"context_scope"`

	// Model info
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// Token usage
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// Attempt tracking (1-indexed; retries produce additional entries)
	Attempt int `json:"attempt"`

	// Status
	Success   bool   `json:"success"`
	ErrorType string `json:"error_type,omitempty"`

	// Metadata
	Timestamp time.Time `json:"timestamp"`
}

// Trail is an append-only log of invocation attempts. It is safe for
// concurrent use; no aggregation state lives here.
type Trail struct {
	mu      sync.Mutex
	entries []Entry
	logger  *slog.Logger
	now     func() time.Time
}

// NewTrail creates a new audit trail.
func NewTrail(logger *slog.Logger) *Trail {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trail{
		logger: logger,
		now:    time.Now,
	}
}

// Record appends an entry to the trail. ID and Timestamp are assigned if
// unset.
func (t *Trail) Record(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = t.now()
	}

	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()

	t.logger.Debug("llm call recorded",
		"record_id", e.RecordID,
		"batch", e.Batch,
		"scope", e.ContextScope,
		"model", e.Model,
		"input_tokens", e.InputTokens,
		"output_tokens", e.OutputTokens,
		"attempt", e.Attempt,
		"success", e.Success)

	return e
}

// Entries returns a copy of all recorded entries in insertion order.
func (t *Trail) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// ForRecord returns a copy of the entries attributed to one record.
func (t *Trail) ForRecord(recordID string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Entry
	for _, e := range t.entries {
		if e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of recorded entries.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
