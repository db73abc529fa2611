package keystroke

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"keytally/internal/keysym"
)

// Replay reads a recorded session, one transition per line:
//
//	down shift_l
//	down !
//	up shift_l
//	up 1
//
// The key is a rendered symbol ("<shift>", "a") or a bare key name
// ("shift_l"). Blank lines and lines starting with # are skipped.
type Replay struct {
	r      io.Reader
	closer io.Closer
	now    func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// NewReplay creates a replay source reading from r.
func NewReplay(r io.Reader) *Replay {
	return &Replay{r: r, now: time.Now}
}

// OpenReplay opens a replay file. Close closes the file.
func OpenReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	r := NewReplay(f)
	r.closer = f
	return r, nil
}

// ParseLine parses one replay line. ok is false for blank and comment
// lines.
func ParseLine(line string) (ev Event, ok bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return Event{}, false, nil
	}

	verb, key, found := strings.Cut(strings.TrimLeft(line, " \t"), " ")
	if !found || key == "" {
		return Event{}, false, fmt.Errorf("malformed replay line %q", line)
	}

	switch verb {
	case "down":
		ev.Dir = Down
	case "up":
		ev.Dir = Up
	default:
		return Event{}, false, fmt.Errorf("unknown direction %q", verb)
	}

	// a single space is the space character, anything longer is trimmed
	if key != " " {
		key = strings.TrimSpace(key)
	}
	ev.Key, err = keysym.Parse(key)
	if err != nil {
		return Event{}, false, fmt.Errorf("parse key %q: %w", key, err)
	}
	return ev, true, nil
}

// Events starts reading. The channel is closed at end of input, on the
// first malformed line, or on cancellation.
func (r *Replay) Events(ctx context.Context) (<-chan Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil, ErrAlreadyRunning
	}
	r.running = true

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	out := make(chan Event)
	go func() {
		defer close(r.done)
		defer close(out)
		if err := r.read(ctx, out); err != nil {
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
		}
	}()
	return out, nil
}

func (r *Replay) read(ctx context.Context, out chan<- Event) error {
	scanner := bufio.NewScanner(r.r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		ev, ok, err := ParseLine(scanner.Text())
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if !ok {
			continue
		}
		ev.Time = r.now()

		select {
		case out <- ev:
		case <-ctx.Done():
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read replay: %w", err)
	}
	return nil
}

// Err returns the read or parse error that ended the replay.
func (r *Replay) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close stops reading and closes the underlying file, if any.
func (r *Replay) Close() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if r.closer != nil {
		err := r.closer.Close()
		r.closer = nil
		return err
	}
	return nil
}
