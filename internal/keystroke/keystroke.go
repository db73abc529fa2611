// Package keystroke delivers raw key events from keyboard sources.
//
// A Source reports every key-down and key-up with the raw identity of the
// key. Left/right modifier variants are preserved and printable keys carry
// the symbol they produce, so a shifted "1" arrives as "!". Normalization
// happens downstream.
//
// Platform support:
// - Linux: reads /dev/input/event* (requires the input group or root)
// - Any platform: Replay reads recorded sessions, Simulated is in-process
package keystroke

import (
	"context"
	"errors"
	"sync"
	"time"

	"keytally/internal/keysym"
)

// Direction is the transition a key event reports.
type Direction uint8

const (
	Down Direction = iota + 1
	Up
)

func (d Direction) String() string {
	switch d {
	case Down:
		return "down"
	case Up:
		return "up"
	default:
		return "invalid"
	}
}

// Event is a single raw key transition.
type Event struct {
	Key  keysym.Symbol
	Dir  Direction
	Time time.Time
}

// Source produces key events until its context is cancelled or it is
// closed.
type Source interface {
	// Events starts the source. The returned channel is closed when the
	// source stops. Calling Events twice returns ErrAlreadyRunning.
	Events(ctx context.Context) (<-chan Event, error)

	// Err returns the error that ended the stream, or nil if it ended
	// because of cancellation, Close or end of input.
	Err() error

	// Close stops the source and releases its resources.
	Close() error
}

var (
	// ErrNotAvailable is returned when keyboard capture isn't available.
	ErrNotAvailable = errors.New("keyboard capture not available on this platform")

	// ErrPermissionDenied is returned when no keyboard device can be opened.
	ErrPermissionDenied = errors.New("insufficient permissions for keyboard capture")

	// ErrAlreadyRunning is returned when Events is called twice.
	ErrAlreadyRunning = errors.New("source already running")

	// ErrClosed is returned when sending to a closed Simulated source.
	ErrClosed = errors.New("source closed")
)

// Simulated is a source fed in-process, for tests and tooling.
type Simulated struct {
	mu      sync.RWMutex
	ch      chan Event
	done    chan struct{}
	once    sync.Once
	running bool
	now     func() time.Time
}

// NewSimulated creates a simulated source with the given channel buffer.
func NewSimulated(buffer int) *Simulated {
	return &Simulated{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
		now:  time.Now,
	}
}

// Events returns the event channel. It is closed when ctx is cancelled or
// Close is called.
func (s *Simulated) Events(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrAlreadyRunning
	}
	s.running = true

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s.ch, nil
}

// Send delivers ev, blocking while the buffer is full.
func (s *Simulated) Send(ev Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.ch <- ev:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// Press sends a key-down for k.
func (s *Simulated) Press(k keysym.Symbol) error {
	return s.Send(Event{Key: k, Dir: Down, Time: s.now()})
}

// Release sends a key-up for k.
func (s *Simulated) Release(k keysym.Symbol) error {
	return s.Send(Event{Key: k, Dir: Up, Time: s.now()})
}

// Tap presses and releases each key in turn.
func (s *Simulated) Tap(keys ...keysym.Symbol) error {
	for _, k := range keys {
		if err := s.Press(k); err != nil {
			return err
		}
		if err := s.Release(k); err != nil {
			return err
		}
	}
	return nil
}

// Err always returns nil.
func (s *Simulated) Err() error {
	return nil
}

// Close closes the event channel. Pending buffered events are still
// delivered to the reader.
func (s *Simulated) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
	return nil
}
