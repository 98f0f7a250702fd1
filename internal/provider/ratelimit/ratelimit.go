// Package ratelimit gates outbound provider requests so a provider's
// published request budget is never exceeded by this process.
package ratelimit

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"marketfeed/internal/httpx"
	"marketfeed/internal/provider/classify"
)

// Doer wraps an httpx.Doer and waits for a token before every request.
// One Doer is shared by all requests to the same provider; rate.Limiter is
// safe for concurrent use.
type Doer struct {
	D       httpx.Doer
	Limiter *rate.Limiter
}

// PerMinute builds a limiter allowing rpm requests per minute with the given
// burst. rpm <= 0 disables limiting.
func PerMinute(d httpx.Doer, rpm float64, burst int) *Doer {
	if rpm <= 0 {
		return &Doer{D: d}
	}
	if burst <= 0 {
		burst = 1
	}
	return &Doer{D: d, Limiter: rate.NewLimiter(rate.Limit(rpm/60), burst)}
}

// MinInterval allows at most one request per interval.
func MinInterval(d httpx.Doer, interval time.Duration) *Doer {
	if interval <= 0 {
		return &Doer{D: d}
	}
	return &Doer{D: d, Limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (l *Doer) Do(req *http.Request) (*http.Response, error) {
	if l.Limiter != nil {
		if err := l.wait(req.Context()); err != nil {
			return nil, err
		}
	}
	return l.D.Do(req)
}

func (l *Doer) wait(ctx context.Context) error {
	err := l.Limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	// the wait would outlive the request deadline
	e := classify.New(classify.RateLimited, "local request budget exhausted: %v", err)
	e.Err = err
	return e
}
