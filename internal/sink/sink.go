// Package sink persists emitted key log entries.
//
// Every sink receives entries in emission order. Multi fans one entry out to
// several sinks and Retry retries a single sink, so a failure in one
// destination never causes an entry to be written twice elsewhere.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"keytally/internal/store"
)

// Sink receives completed key log entries.
type Sink interface {
	Append(ctx context.Context, e store.Entry) error
	Close() error
}

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("sink: closed")

// name returns a printable identity for log attributes.
func name(s Sink) string {
	if st, ok := s.(fmt.Stringer); ok {
		return st.String()
	}
	return fmt.Sprintf("%T", s)
}

// Multi delivers each entry to every sink in order.
type Multi []Sink

// PartialError reports an entry that some, but not all, sinks of a Multi
// accepted.
type PartialError struct {
	Failed int
	Total  int
	Err    error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%d of %d sinks failed: %v", e.Failed, e.Total, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// Append writes e to all sinks, even after a failure, and returns every
// failure joined. When at least one sink accepted e the error is a
// *PartialError.
func (m Multi) Append(ctx context.Context, e store.Entry) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name(s), err))
		}
	}
	err := errors.Join(errs...)
	if err != nil && len(errs) < len(m) {
		return &PartialError{Failed: len(errs), Total: len(m), Err: err}
	}
	return err
}

// Close closes all sinks.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name(s), err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) String() string {
	return fmt.Sprintf("multi(%d)", len(m))
}

// Retry retries failed appends on the wrapped sink.
type Retry struct {
	Sink
	retries int
	backoff time.Duration
	log     *slog.Logger
}

// WithRetry wraps s so that a failed Append is retried up to retries more
// times, waiting backoff, then 2*backoff and so on between attempts.
func WithRetry(s Sink, retries int, backoff time.Duration, log *slog.Logger) *Retry {
	if log == nil {
		log = slog.Default()
	}
	return &Retry{Sink: s, retries: retries, backoff: backoff, log: log}
}

// Append writes e, retrying transient failures.
func (r *Retry) Append(ctx context.Context, e store.Entry) error {
	wait := r.backoff
	for attempt := 0; ; attempt++ {
		err := r.Sink.Append(ctx, e)
		if err == nil {
			return nil
		}
		if attempt >= r.retries || errors.Is(err, ErrClosed) || errors.Is(err, store.ErrClosed) {
			return err
		}

		r.log.Warn("sink append failed, retrying",
			"sink", name(r.Sink),
			"attempt", attempt+1,
			"error", err,
		)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		}
		wait *= 2
	}
}

func (r *Retry) String() string {
	return name(r.Sink)
}

// Memory keeps entries in memory. Fail, when set, is consulted before
// every append and its error returned instead of storing.
type Memory struct {
	mu      sync.Mutex
	entries []store.Entry
	closed  bool

	Fail func(e store.Entry) error
}

// Append stores e.
func (m *Memory) Append(ctx context.Context, e store.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.Fail != nil {
		if err := m.Fail(e); err != nil {
			return err
		}
	}
	m.entries = append(m.entries, e)
	return nil
}

// Entries returns a copy of the stored entries.
func (m *Memory) Entries() []store.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Combos returns the stored combos in order.
func (m *Memory) Combos() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Combo
	}
	return out
}

// Closed reports whether Close was called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the sink closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) String() string {
	return "memory"
}
