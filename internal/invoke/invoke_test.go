package invoke

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/audit"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/fieldconfig"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/plan"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/providers"
)

func testBatch(structured bool) plan.Batch {
	return plan.Batch{
		Name:       "meta_batch",
		Zone:       "pre_intro",
		ZoneText:   "Title\nAuthors\n2021",
		Structured: structured,
		Fields: []fieldconfig.FieldSpec{
			{Name: "Year", Type: fieldconfig.OutputShortText, Prompt: "Extract the publication year."},
			{Name: "DOI", Type: fieldconfig.OutputShortText, Prompt: "Extract the DOI."},
		},
	}
}

func testInvoker(client providers.Client, trail *audit.Trail, maxAttempts uint) *Invoker {
	return NewInvoker(client, NewLimiter(4, 0, 0), trail, nil, Config{
		Model:          "test-model",
		MaxAttempts:    maxAttempts,
		RetryBaseDelay: time.Millisecond,
	})
}

func TestInvokeRetriesTransientThenSucceeds(t *testing.T) {
	mock := providers.NewMockClient()
	mock.FailFirst = 3
	trail := audit.NewTrail(nil)
	inv := testInvoker(mock, trail, 4)

	res, err := inv.Invoke(context.Background(), "rec1", testBatch(false))
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !res.Success || res.Attempts != 4 {
		t.Errorf("result = %+v, want success after 4 attempts", res)
	}

	entries := trail.ForRecord("rec1")
	if len(entries) != 4 {
		t.Fatalf("trail has %d entries, want 4 (one per attempt)", len(entries))
	}
	for i, e := range entries {
		if e.Attempt != i+1 {
			t.Errorf("entry %d: attempt = %d, want %d", i, e.Attempt, i+1)
		}
		wantSuccess := i == 3
		if e.Success != wantSuccess {
			t.Errorf("entry %d: success = %v, want %v", i, e.Success, wantSuccess)
		}
		if !wantSuccess && e.ErrorType != "transient" {
			t.Errorf("entry %d: error type = %q", i, e.ErrorType)
		}
		if e.Batch != "meta_batch" || e.ContextScope != "pre_intro" {
			t.Errorf("entry %d: attribution = %q/%q", i, e.Batch, e.ContextScope)
		}
	}
}

func TestInvokeExhaustionYieldsFailedResult(t *testing.T) {
	mock := providers.NewMockClient()
	mock.FailFirst = 10
	trail := audit.NewTrail(nil)
	inv := testInvoker(mock, trail, 3)

	res, err := inv.Invoke(context.Background(), "rec1", testBatch(false))
	if err != nil {
		t.Fatalf("exhaustion must not be an error: %v", err)
	}
	if res.Success {
		t.Error("result should be failed")
	}
	if res.Attempts != 3 || res.ErrorType != "transient" {
		t.Errorf("result = %+v", res)
	}
	if trail.Len() != 3 {
		t.Errorf("trail has %d entries, want 3", trail.Len())
	}
}

func TestInvokeFatalAbortsImmediately(t *testing.T) {
	mock := providers.NewMockClient()
	mock.FatalAlways = true
	trail := audit.NewTrail(nil)
	inv := testInvoker(mock, trail, 4)

	_, err := inv.Invoke(context.Background(), "rec1", testBatch(false))
	var fatal *FatalInvocationError
	if !errors.As(err, &fatal) {
		t.Fatalf("want FatalInvocationError, got %v", err)
	}
	if fatal.Batch != "meta_batch" {
		t.Errorf("Batch = %q", fatal.Batch)
	}
	if trail.Len() != 1 {
		t.Errorf("fatal errors must not be retried: %d entries", trail.Len())
	}
}

func TestInvokeStructuredCarriesSchema(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseText = `{"Year": "2021", "DOI": ""}`
	trail := audit.NewTrail(nil)
	inv := testInvoker(mock, trail, 1)

	res, err := inv.Invoke(context.Background(), "rec1", testBatch(true))
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !res.Structured || len(res.Schema) == 0 {
		t.Errorf("structured result should carry its schema: %+v", res)
	}
}

func TestInvokeAdmissionTimeoutIsAudited(t *testing.T) {
	limiter := NewLimiter(1, 0, 20*time.Millisecond)
	release, err := limiter.Acquire(context.Background())
	if err != nil {
		t.Fatalf("saturating acquire failed: %v", err)
	}
	defer release()

	trail := audit.NewTrail(nil)
	inv := NewInvoker(providers.NewMockClient(), limiter, trail, nil, Config{
		Model:          "test-model",
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
	})

	_, err = inv.Invoke(context.Background(), "rec1", testBatch(false))
	if !errors.Is(err, ErrRateLimitTimeout) {
		t.Fatalf("want ErrRateLimitTimeout, got %v", err)
	}

	entries := trail.ForRecord("rec1")
	if len(entries) != 1 {
		t.Fatalf("trail has %d entries, want 1 for the refused admission", len(entries))
	}
	e := entries[0]
	if e.Success || e.ErrorType != "rate_limit_timeout" || e.Attempt != 1 {
		t.Errorf("entry = %+v, want failed rate_limit_timeout attempt 1", e)
	}
	if e.Batch != "meta_batch" || e.ContextScope != "pre_intro" {
		t.Errorf("attribution = %q/%q", e.Batch, e.ContextScope)
	}
}

func TestInvokeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := providers.NewMockClient()
	trail := audit.NewTrail(nil)
	inv := testInvoker(mock, trail, 4)

	_, err := inv.Invoke(ctx, "rec1", testBatch(false))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}

func TestUserPromptDelimited(t *testing.T) {
	prompt, err := UserPrompt(testBatch(false))
	if err != nil {
		t.Fatalf("UserPrompt failed: %v", err)
	}
	for _, want := range []string{"<<<FIELD:Year>>>", "<<<FIELD:DOI>>>", "Title\nAuthors\n2021", "pre_intro"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestUserPromptStructured(t *testing.T) {
	prompt, err := UserPrompt(testBatch(true))
	if err != nil {
		t.Fatalf("UserPrompt failed: %v", err)
	}
	if strings.Contains(prompt, "<<<FIELD:") {
		t.Error("structured prompt must not use delimiter markers")
	}
	for _, want := range []string{`"Year"`, `"DOI"`, "JSON object"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestSchemaName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"meta_batch", "meta_batch"},
		{"outcomes batch!", "outcomes_batch_"},
		{"  ", "extraction"},
	}
	for _, tt := range tests {
		if got := SchemaName(tt.in); got != tt.want {
			t.Errorf("SchemaName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
