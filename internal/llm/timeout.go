package llm

import (
	"context"
	"time"
)

// timeoutClient bounds every completion call. Callers treat the resulting
// deadline error like any other transport failure.
type timeoutClient struct {
	inner   Client
	timeout time.Duration
}

// NewTimeoutClient wraps a client so each Complete call is bounded by d.
// A non-positive d returns the client unchanged.
func NewTimeoutClient(inner Client, d time.Duration) Client {
	if inner == nil {
		panic("llm: inner client cannot be nil")
	}
	if d <= 0 {
		return inner
	}
	return &timeoutClient{inner: inner, timeout: d}
}

func (c *timeoutClient) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.inner.Complete(ctx, req)
}
