// Package outcall wraps the outbound-HTTP primitive a host canister would
// provide: response-size caps, a deterministic transform step, and a typed
// failure surface. Grounded on the teacher's own HTTP client pattern
// (internal/services/exchange_rate_service.go: a shared *http.Client with a
// fixed timeout and explicit status/body checks).
package outcall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"
)

// FailureKind enumerates the documented outcall failure modes.
type FailureKind int

const (
	HttpRejected FailureKind = iota
	ResponseTooLarge
	Timeout
)

type Error struct {
	Kind     FailureKind
	SourceID string
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("outcall to %s failed: %v", e.SourceID, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Result is the deterministic surface returned to the caller: the
// transformed body plus a digest of it, standing in for the cross-replica
// agreement a real IC transform function would produce.
type Result struct {
	Body   []byte
	Digest [32]byte
}

// Driver issues GET outcalls with a response-size cap and a transform step
// that strips headers and truncates the body. Each source gets its own
// token-bucket limiter so a single slow or chatty exchange cannot be hit
// faster than its documented rate limit, the same per-key limiter map the
// teacher's internal/middleware/ratelimit.go keeps per user.
type Driver struct {
	client *http.Client

	limMu     sync.Mutex
	limiters  map[string]*rate.Limiter
	perSource rate.Limit
	burst     int
}

func New(timeout time.Duration) *Driver {
	return &Driver{
		client:    &http.Client{Timeout: timeout},
		limiters:  make(map[string]*rate.Limiter),
		perSource: rate.Limit(5), // 5 req/s ceiling per upstream source
		burst:     5,
	}
}

func (d *Driver) limiterFor(sourceID string) *rate.Limiter {
	d.limMu.Lock()
	defer d.limMu.Unlock()
	l, ok := d.limiters[sourceID]
	if !ok {
		l = rate.NewLimiter(d.perSource, d.burst)
		d.limiters[sourceID] = l
	}
	return l
}

// Fetch performs a GET against url, capping the read at maxBytes and
// reporting HttpRejected / ResponseTooLarge / Timeout on failure. The
// returned body has already been through Transform.
func (d *Driver) Fetch(ctx context.Context, sourceID, url string, maxBytes int64) (Result, error) {
	if err := d.limiterFor(sourceID).Wait(ctx); err != nil {
		return Result{}, &Error{Kind: Timeout, SourceID: sourceID, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, &Error{Kind: HttpRejected, SourceID: sourceID, Cause: err}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, &Error{Kind: Timeout, SourceID: sourceID, Cause: ctx.Err()}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Result{}, &Error{Kind: Timeout, SourceID: sourceID, Cause: err}
		}
		return Result{}, &Error{Kind: HttpRejected, SourceID: sourceID, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &Error{Kind: HttpRejected, SourceID: sourceID, Cause: fmt.Errorf("status %d", resp.StatusCode)}
	}

	limited := io.LimitReader(resp.Body, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return Result{}, &Error{Kind: HttpRejected, SourceID: sourceID, Cause: err}
	}
	if int64(len(raw)) > maxBytes {
		return Result{}, &Error{Kind: ResponseTooLarge, SourceID: sourceID, Cause: fmt.Errorf("body exceeds %d byte cap", maxBytes)}
	}

	return Transform(raw, maxBytes), nil
}

// Transform is the callback the host re-runs on every replica's reply: it
// keeps only the body (stripping all headers, which can vary by replica)
// and truncates to maxBytes, then digests the result with blake2b so every
// replica's transform output can be compared for bitwise agreement.
func Transform(body []byte, maxBytes int64) Result {
	if int64(len(body)) > maxBytes {
		body = body[:maxBytes]
	}
	digest := blake2b.Sum256(body)
	return Result{Body: body, Digest: digest}
}
