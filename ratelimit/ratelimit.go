// Package ratelimit bounds the frequency of sensitive operations per
// (bucket, type, value) key using a sliding-window counter shared
// across process instances through a persistent store.
//
// The estimate blends the current fixed window with the previous one:
//
//	effective = windowCount + prevWindowCount * (1 - elapsed/window)
//
// so a burst right before a window boundary keeps counting against
// the start of the next window instead of resetting to zero.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	identity "github.com/goliatone/go-identity"
)

// Rule bounds one bucket/type pair to limit calls per window
type Rule struct {
	Bucket string
	Type   string
	Window time.Duration
	Limit  int64
}

// Key identifies the caller being limited, e.g.
// {Bucket: "signin", Type: "ip", Value: "203.0.113.7"}.
type Key struct {
	Bucket string
	Type   string
	Value  string
}

// Counter is the persisted window state for one key
type Counter struct {
	Bucket          string    `bson:"bucket"`
	Type            string    `bson:"type"`
	Value           string    `bson:"value"`
	WindowMS        int64     `bson:"window_ms"`
	WindowStart     time.Time `bson:"window_start"`
	WindowCount     int64     `bson:"window_count"`
	PrevWindowCount int64     `bson:"prev_window_count"`
	ExpiresAt       time.Time `bson:"expires_at"`
}

// Store persists counters. Insert must be insert-if-absent; Increment
// and Rotate are conditional on the observed windowStart so two
// instances racing on the same key cannot double-apply a rotation.
type Store interface {
	Get(ctx context.Context, key Key, windowMS int64) (*Counter, error)
	Insert(ctx context.Context, counter *Counter) (bool, error)
	Increment(ctx context.Context, key Key, windowMS int64, windowStart time.Time, expiresAt time.Time) (bool, error)
	Rotate(ctx context.Context, key Key, windowMS int64, observedStart time.Time, next *Counter) (bool, error)
}

// ErrAlreadyInitialized guards against silently replacing active limits
var ErrAlreadyInitialized = goerrors.New("rate limits already initialized", goerrors.CategoryConflict).
	WithCode(goerrors.CodeConflict)

// ErrNotInitialized is returned when Consume runs before Init
var ErrNotInitialized = goerrors.New("rate limits not initialized", goerrors.CategoryOperation)

// ErrDuplicateRule rejects two rules for the same bucket/type pair
func ErrDuplicateRule(bucket, typ string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("duplicate rate limit rule for %s/%s", bucket, typ), goerrors.CategoryConflict).
		WithCode(goerrors.CodeConflict)
}

// ErrExceeded names the bucket that rejected the call. The boundary
// maps CategoryRateLimit to a throttling-class response.
func ErrExceeded(bucket string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("rate limit exceeded for %q", bucket), goerrors.CategoryRateLimit).
		WithMetadata(map[string]any{"bucket": bucket})
}

// IsExceeded will check for limiter rejections
func IsExceeded(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryRateLimit
}

type ruleKey struct {
	bucket string
	typ    string
}

// Limiter evaluates rules against the shared store
type Limiter struct {
	store  Store
	logger identity.Logger
	now    func() time.Time

	mu    sync.Mutex
	rules map[ruleKey]Rule
}

type Option func(*Limiter)

// WithLogger overrides the default logger
func WithLogger(l identity.Logger) Option {
	return func(lim *Limiter) {
		if l != nil {
			lim.logger = l
		}
	}
}

// WithClock injects a custom clock (useful for tests)
func WithClock(now func() time.Time) Option {
	return func(lim *Limiter) {
		if now != nil {
			lim.now = now
		}
	}
}

func New(store Store, opts ...Option) *Limiter {
	lim := &Limiter{
		store: store,
		now:   time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(lim)
		}
	}

	return lim
}

// Init registers the process-wide rule set exactly once. A second
// call fails so active limits cannot be silently replaced.
func (l *Limiter) Init(rules ...Rule) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rules != nil {
		return ErrAlreadyInitialized
	}

	set := make(map[ruleKey]Rule, len(rules))
	for _, r := range rules {
		if r.Window <= 0 || r.Limit <= 0 {
			return goerrors.New(
				fmt.Sprintf("invalid rate limit rule for %s/%s", r.Bucket, r.Type),
				goerrors.CategoryValidation,
			).WithCode(goerrors.CodeBadRequest)
		}

		key := ruleKey{bucket: r.Bucket, typ: r.Type}
		if _, exists := set[key]; exists {
			return ErrDuplicateRule(r.Bucket, r.Type)
		}
		set[key] = r
	}

	l.rules = set
	return nil
}

var _ identity.RateLimiter = (*Limiter)(nil)

// Consume records one call for the key and rejects it when the
// blended window estimate has reached the rule's limit. Keys without
// a registered rule are allowed through untouched.
func (l *Limiter) Consume(ctx context.Context, bucket, typ, value string) error {
	key := Key{Bucket: bucket, Type: typ, Value: value}

	l.mu.Lock()
	rules := l.rules
	l.mu.Unlock()

	if rules == nil {
		return ErrNotInitialized
	}

	rule, ok := rules[ruleKey{bucket: key.Bucket, typ: key.Type}]
	if !ok {
		return nil
	}

	// Two attempts: a concurrent rotation on the same key fails the
	// conditional write once, then the re-read converges.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := l.consumeOnce(ctx, key, rule)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return nil
		}
		return ErrExceeded(key.Bucket)
	}

	return lastErr
}

var errConcurrentUpdate = goerrors.New("concurrent counter update", goerrors.CategoryOperation)

func (l *Limiter) consumeOnce(ctx context.Context, key Key, rule Rule) (bool, error) {
	now := l.now()
	windowMS := rule.Window.Milliseconds()

	counter, err := l.store.Get(ctx, key, windowMS)
	if err != nil {
		if !identity.IsRecordNotFound(err) {
			return false, err
		}

		inserted, err := l.store.Insert(ctx, &Counter{
			Bucket:          key.Bucket,
			Type:            key.Type,
			Value:           key.Value,
			WindowMS:        windowMS,
			WindowStart:     now,
			WindowCount:     1,
			PrevWindowCount: 0,
			ExpiresAt:       now.Add(2 * rule.Window),
		})
		if err != nil {
			return false, err
		}
		if !inserted {
			// Lost the insert race; re-read on the next attempt.
			return false, errConcurrentUpdate
		}
		return true, nil
	}

	cur, prev, start := rotateWindow(counter, rule.Window, now)

	if effectiveCount(cur, prev, start, rule.Window, now) >= rule.Limit {
		return false, nil
	}

	if start.Equal(counter.WindowStart) {
		ok, err := l.store.Increment(ctx, key, windowMS, counter.WindowStart, now.Add(2*rule.Window))
		if err != nil {
			return false, err
		}
		if !ok {
			return false, errConcurrentUpdate
		}
		return true, nil
	}

	ok, err := l.store.Rotate(ctx, key, windowMS, counter.WindowStart, &Counter{
		Bucket:          key.Bucket,
		Type:            key.Type,
		Value:           key.Value,
		WindowMS:        windowMS,
		WindowStart:     start,
		WindowCount:     cur + 1,
		PrevWindowCount: prev,
		ExpiresAt:       now.Add(2 * rule.Window),
	})
	if err != nil {
		return false, err
	}
	if !ok {
		return false, errConcurrentUpdate
	}
	return true, nil
}

// rotateWindow maps the stored counter onto the window containing
// now. One elapsed window shifts current into previous; a gap of two
// or more windows clears both.
func rotateWindow(c *Counter, window time.Duration, now time.Time) (cur, prev int64, start time.Time) {
	elapsed := now.Sub(c.WindowStart)
	switch {
	case elapsed < window:
		return c.WindowCount, c.PrevWindowCount, c.WindowStart
	case elapsed < 2*window:
		return 0, c.WindowCount, c.WindowStart.Add(window)
	default:
		steps := elapsed / window
		return 0, 0, c.WindowStart.Add(window * steps)
	}
}

// effectiveCount blends the previous window proportionally to the
// overlap still covered by a sliding window ending at now.
func effectiveCount(cur, prev int64, start time.Time, window time.Duration, now time.Time) int64 {
	if prev == 0 {
		return cur
	}

	overlap := 1 - float64(now.Sub(start))/float64(window)
	if overlap < 0 {
		overlap = 0
	}

	return cur + int64(float64(prev)*overlap)
}
