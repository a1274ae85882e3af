// Package invoke drives model calls for planned batches: prompt assembly,
// rate-limited admission, retry with backoff, and per-attempt usage
// auditing.
package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/audit"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/plan"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/providers"
)

// FatalInvocationError aborts the current document: the provider rejected
// the request in a way retries cannot fix.
type FatalInvocationError struct {
	Batch string
	Err   error
}

func (e *FatalInvocationError) Error() string {
	return fmt.Sprintf("batch %s: fatal invocation error: %v", e.Batch, e.Err)
}

func (e *FatalInvocationError) Unwrap() error { return e.Err }

// Result is the outcome of invoking one planned batch. A failed result
// (Success false) is a valid outcome: the batch exhausted its retries and
// its fields map to missing, while the rest of the document proceeds.
type Result struct {
	Batch      string
	Zone       string
	Structured bool
	Content    string
	Schema     json.RawMessage

	InputTokens  int
	OutputTokens int
	Attempts     int

	Success      bool
	ErrorType    string
	ErrorMessage string
}

// Config tunes the invoker.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int

	// MaxAttempts counts the first try plus retries. Defaults to 4.
	MaxAttempts uint
	// RetryBaseDelay seeds the exponential backoff. Defaults to 500ms.
	RetryBaseDelay time.Duration
}

// Invoker executes planned batches against a model client. One invoker is
// shared by all workers of a run so the limiter and audit trail see every
// call.
type Invoker struct {
	client  providers.Client
	limiter *Limiter
	trail   *audit.Trail
	logger  *slog.Logger
	cfg     Config
}

// NewInvoker creates an invoker. A nil logger falls back to slog.Default().
func NewInvoker(client providers.Client, limiter *Limiter, trail *audit.Trail, logger *slog.Logger, cfg Config) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	return &Invoker{
		client:  client,
		limiter: limiter,
		trail:   trail,
		logger:  logger,
		cfg:     cfg,
	}
}

// Invoke runs one batch call to completion. Transient failures are retried
// with exponential backoff up to the attempt ceiling; exhaustion yields a
// failed Result, not an error. Fatal provider failures return a
// *FatalInvocationError and admission timeouts return ErrRateLimitTimeout.
// Every attempt lands in the audit trail, admission failures included.
func (inv *Invoker) Invoke(ctx context.Context, recordID string, b plan.Batch) (*Result, error) {
	req, err := inv.buildRequest(b)
	if err != nil {
		return nil, &FatalInvocationError{Batch: b.Name, Err: err}
	}

	var (
		attempt int
		chat    *providers.ChatResult
		lastErr error
	)

	retryErr := retry.Do(
		func() error {
			attempt++

			release, err := inv.limiter.Acquire(ctx)
			if err != nil {
				lastErr = err
				inv.record(recordID, b, nil, attempt, err)
				return retry.Unrecoverable(err)
			}

			res, err := inv.client.Chat(ctx, req)
			release()

			inv.record(recordID, b, res, attempt, err)

			if err != nil {
				lastErr = err
				if providers.IsFatal(err) || ctx.Err() != nil {
					return retry.Unrecoverable(err)
				}
				inv.logger.Warn("model call failed",
					"record_id", recordID,
					"batch", b.Name,
					"attempt", attempt,
					"error", err)
				return err
			}

			chat = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(inv.cfg.MaxAttempts),
		retry.Delay(inv.cfg.RetryBaseDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(inv.cfg.RetryBaseDelay/2),
		retry.LastErrorOnly(true),
	)

	if retryErr == nil {
		return &Result{
			Batch:        b.Name,
			Zone:         b.Zone,
			Structured:   b.Structured,
			Content:      chat.Content,
			Schema:       req.Schema,
			InputTokens:  chat.InputTokens,
			OutputTokens: chat.OutputTokens,
			Attempts:     attempt,
			Success:      true,
		}, nil
	}

	switch {
	case errors.Is(lastErr, ErrRateLimitTimeout):
		return nil, fmt.Errorf("batch %s: %w", b.Name, lastErr)
	case providers.IsFatal(lastErr):
		return nil, &FatalInvocationError{Batch: b.Name, Err: lastErr}
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}

	inv.logger.Error("batch exhausted retries",
		"record_id", recordID,
		"batch", b.Name,
		"attempts", attempt,
		"error", lastErr)

	return &Result{
		Batch:        b.Name,
		Zone:         b.Zone,
		Structured:   b.Structured,
		Schema:       req.Schema,
		Attempts:     attempt,
		Success:      false,
		ErrorType:    errorType(lastErr),
		ErrorMessage: lastErr.Error(),
	}, nil
}

func (inv *Invoker) buildRequest(b plan.Batch) (*providers.ChatRequest, error) {
	prompt, err := UserPrompt(b)
	if err != nil {
		return nil, err
	}

	req := &providers.ChatRequest{
		System:      SystemPrompt(),
		Prompt:      prompt,
		Model:       inv.cfg.Model,
		Temperature: inv.cfg.Temperature,
		MaxTokens:   inv.cfg.MaxTokens,
		Structured:  b.Structured,
	}

	if b.Structured {
		schema, err := BatchSchema(b)
		if err != nil {
			return nil, err
		}
		req.Schema = schema
		req.SchemaName = SchemaName(b.Name)
	}
	return req, nil
}

// record appends one audit entry per attempt. res is nil when the attempt
// never reached the provider.
func (inv *Invoker) record(recordID string, b plan.Batch, res *providers.ChatResult, attempt int, err error) {
	entry := audit.Entry{
		RecordID:     recordID,
		Batch:        b.Name,
		ContextScope: b.Zone,
		Provider:     inv.client.Name(),
		Model:        inv.cfg.Model,
		Attempt:      attempt,
		Success:      err == nil,
	}
	if res != nil {
		entry.InputTokens = res.InputTokens
		entry.OutputTokens = res.OutputTokens
		if res.Model != "" {
			entry.Model = res.Model
		}
		if res.Provider != "" {
			entry.Provider = res.Provider
		}
	}
	if err != nil {
		entry.ErrorType = errorType(err)
	}
	inv.trail.Record(entry)
}

func errorType(err error) string {
	switch {
	case providers.IsFatal(err):
		return "fatal"
	case providers.IsTransient(err):
		return "transient"
	case errors.Is(err, ErrRateLimitTimeout):
		return "rate_limit_timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}
