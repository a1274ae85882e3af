package providers

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is a Client for testing.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	FailFirst    int  // fail the first N requests with a transient error
	FatalAlways  bool // every request fails with a fatal error
	ResponseText string
	InputTokens  int
	OutputTokens int

	// State
	requestCount atomic.Int64
}

// NewMockClient creates a mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		ResponseText: "mock response",
		InputTokens:  100,
		OutputTokens: 20,
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Chat sends a mock chat request.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	count := c.requestCount.Add(1)

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if c.FatalAlways {
		return nil, &FatalError{Err: fmt.Errorf("mock fatal failure")}
	}
	if int(count) <= c.FailFirst {
		return nil, &TransientError{Err: fmt.Errorf("mock transient failure %d", count)}
	}

	return &ChatResult{
		Content:      c.ResponseText,
		InputTokens:  c.InputTokens,
		OutputTokens: c.OutputTokens,
		Provider:     MockClientName,
		Model:        req.Model,
	}, nil
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Reset resets the request counter.
func (c *MockClient) Reset() {
	c.requestCount.Store(0)
}

var _ Client = (*MockClient)(nil)
