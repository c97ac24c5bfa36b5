package llm

import (
	"context"
	"time"
)

type timeoutProvider struct {
	next    Provider
	timeout time.Duration
}

// WithTimeout bounds every Generate call of next, retries included when
// next is a retrying provider. A non-positive timeout returns next unchanged.
func WithTimeout(next Provider, timeout time.Duration) Provider {
	if timeout <= 0 {
		return next
	}
	return &timeoutProvider{next: next, timeout: timeout}
}

func (p *timeoutProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.next.Generate(ctx, req)
}

func (p *timeoutProvider) ModelID() string {
	return p.next.ModelID()
}
