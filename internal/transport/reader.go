package transport

import (
	"context"
	"io"
)

// RateLimiter is the throttling surface LimitedReader needs, satisfied
// by types.RateLimiter.
type RateLimiter interface {
	WaitN(ctx context.Context, n int) error
	Burst() int
}

// ReadCloser is re-exported so callers don't import io just for the type.
type ReadCloser = io.ReadCloser

// LimitedReader throttles reads against a shared rate limiter.
type LimitedReader struct {
	ctx     context.Context
	r       io.ReadCloser
	limiter RateLimiter
}

func NewLimitedReader(ctx context.Context, r io.ReadCloser, limiter RateLimiter) *LimitedReader {
	return &LimitedReader{ctx: ctx, r: r, limiter: limiter}
}

func (lr *LimitedReader) Read(p []byte) (int, error) {
	// Never request more than the burst in one wait
	if burst := lr.limiter.Burst(); burst > 0 && len(p) > burst {
		p = p[:burst]
	}

	n, err := lr.r.Read(p)
	if n > 0 {
		if werr := lr.limiter.WaitN(lr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (lr *LimitedReader) Close() error {
	return lr.r.Close()
}
