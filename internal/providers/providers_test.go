package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		fatal     bool
	}{
		{"transient", &TransientError{Err: errors.New("429")}, true, false},
		{"fatal", &FatalError{Err: errors.New("401")}, false, true},
		{"wrapped transient", fmt.Errorf("attempt: %w", &TransientError{Err: errors.New("503")}), true, false},
		{"plain", errors.New("boom"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.transient {
				t.Errorf("IsTransient = %v, want %v", got, tt.transient)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestClassifyOpenAIErrorNetworkIsTransient(t *testing.T) {
	err := classifyOpenAIError(errors.New("connection reset by peer"))
	if !IsTransient(err) {
		t.Errorf("network error should classify transient, got %v", err)
	}
}

func TestClassifyOpenAIErrorCancellationPassesThrough(t *testing.T) {
	err := classifyOpenAIError(fmt.Errorf("request: %w", context.Canceled))
	if IsTransient(err) || IsFatal(err) {
		t.Errorf("cancellation must not be classified for retry, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancellation should be preserved, got %v", err)
	}
}

func TestMockClientFailFirst(t *testing.T) {
	mock := NewMockClient()
	mock.FailFirst = 2

	ctx := context.Background()
	req := &ChatRequest{Prompt: "extract"}

	for i := 0; i < 2; i++ {
		if _, err := mock.Chat(ctx, req); !IsTransient(err) {
			t.Fatalf("request %d: want transient error, got %v", i+1, err)
		}
	}

	res, err := mock.Chat(ctx, req)
	if err != nil {
		t.Fatalf("third request should succeed: %v", err)
	}
	if res.Content != "mock response" || res.InputTokens != 100 {
		t.Errorf("unexpected result: %+v", res)
	}
	if got := mock.RequestCount(); got != 3 {
		t.Errorf("RequestCount = %d, want 3", got)
	}
}

func TestOpenAIClientDefaults(t *testing.T) {
	c := NewOpenAIClient(OpenAIConfig{APIKey: "test", HTTPClient: &http.Client{}})
	if c.Name() != OpenAIName {
		t.Errorf("Name = %q", c.Name())
	}
	if c.model == "" {
		t.Error("default model not applied")
	}
}
