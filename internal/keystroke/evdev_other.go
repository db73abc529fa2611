//go:build !linux

package keystroke

import (
	"context"
	"log/slog"
)

// Evdev is unavailable on this platform.
type Evdev struct{}

// NewEvdev returns a source that always fails with ErrNotAvailable.
func NewEvdev(log *slog.Logger, devices ...string) *Evdev {
	return &Evdev{}
}

// Available returns false on unsupported platforms.
func (e *Evdev) Available() (bool, string) {
	return false, "keyboard capture not implemented for this platform"
}

// Events returns ErrNotAvailable.
func (e *Evdev) Events(ctx context.Context) (<-chan Event, error) {
	return nil, ErrNotAvailable
}

// Err always returns nil.
func (e *Evdev) Err() error {
	return nil
}

// Close is a no-op on unsupported platforms.
func (e *Evdev) Close() error {
	return nil
}
