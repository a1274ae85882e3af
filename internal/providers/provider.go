// Package providers defines the model client contract the extraction
// pipeline talks to, plus the OpenAI implementation.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Client is the chat-completion interface the invoker consumes.
type Client interface {
	// Chat sends one completion request. Failures are classified: errors
	// worth retrying unwrap to *TransientError, permanent ones to
	// *FatalError.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// Name returns the client identifier (e.g. "openai").
	Name() string
}

// ChatRequest is one completion request.
type ChatRequest struct {
	System string
	Prompt string

	// Model selection (uses client default if empty).
	Model       string
	Temperature float64
	MaxTokens   int

	// Structured requests JSON output. When Schema is set the model is
	// constrained to schema-conforming output; otherwise plain JSON mode.
	Structured bool
	SchemaName string
	Schema     json.RawMessage
}

// ChatResult is the model response with token accounting.
type ChatResult struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Provider     string
	Model        string
}

// TransientError marks a failure worth retrying: rate limits, server
// errors, connection failures.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient provider error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a non-retryable failure: malformed requests, invalid
// credentials.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal provider error: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err is a non-retryable provider failure.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
