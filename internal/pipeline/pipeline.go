// Package pipeline connects an event source to the log sinks.
//
// Each raw event is normalized, filtered against the ignore set and applied
// to the press-state tracker. Combos emitted by the tracker are stamped
// with the current UTC time and queued for a single writer goroutine, so
// sinks see entries in exactly the order they were produced while capture
// never waits on storage unless the queue is full.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"keytally/internal/keystroke"
	"keytally/internal/keysym"
	"keytally/internal/sink"
	"keytally/internal/store"
	"keytally/internal/tracker"
)

// DefaultQueueSize is the number of entries buffered between the tracker
// and the sinks.
const DefaultQueueSize = 256

var (
	// ErrClosed is returned by Handle after Close.
	ErrClosed = errors.New("pipeline: closed")

	// ErrInvalidEvent is returned for events without a key or direction.
	ErrInvalidEvent = errors.New("pipeline: invalid event")
)

// Config configures a Pipeline.
type Config struct {
	// Remap normalizes raw keys. Nil uses keysym.DefaultRemap.
	Remap keysym.RemapTable

	// Ignore lists canonical keys dropped in both directions.
	Ignore keysym.IgnoreSet

	// GCThreshold is passed to the tracker.
	GCThreshold int

	// QueueSize bounds the entry queue. Values below 1 use the default.
	QueueSize int

	Logger *slog.Logger

	// Now stamps entries. Defaults to time.Now.
	Now func() time.Time
}

// Stats counts what the pipeline has seen.
type Stats struct {
	Events    uint64 // events handled
	Ignored   uint64 // events dropped by the ignore set
	Emitted   uint64 // entries produced by the tracker
	Written   uint64 // entries accepted by at least one sink
	Partial   uint64 // written entries that some sinks rejected
	Failed    uint64 // entries no sink accepted
	Orphans   uint64 // key-ups without a matching key-down
	Collected uint64 // locked-in keys cleared by garbage collection
}

// keyRules is swapped as a whole so Handle never sees a remap table
// paired with a stale ignore set.
type keyRules struct {
	remap  keysym.RemapTable
	ignore keysym.IgnoreSet
}

// Pipeline dispatches events to a tracker and entries to a sink.
type Pipeline struct {
	rules   atomic.Pointer[keyRules]
	tracker *tracker.Tracker
	sink    sink.Sink
	log     *slog.Logger
	now     func() time.Time

	// mu orders tracker transitions with their enqueue
	mu     sync.Mutex
	closed bool
	queue  chan store.Entry

	// closing is closed when Close starts, releasing blocked senders
	closing chan struct{}

	writeCtx    context.Context
	cancelWrite context.CancelFunc
	done        chan struct{}
	closeOnce   sync.Once
	closeErr    error

	events, ignored, emitted, written, partial, failed, orphans, collected atomic.Uint64
}

// New creates a pipeline writing to s and starts its writer.
func New(s sink.Sink, cfg Config) *Pipeline {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	writeCtx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		tracker: tracker.New(tracker.Config{
			GCThreshold: cfg.GCThreshold,
			Logger:      cfg.Logger,
		}),
		sink:        s,
		log:         cfg.Logger,
		now:         cfg.Now,
		queue:       make(chan store.Entry, cfg.QueueSize),
		writeCtx:    writeCtx,
		cancelWrite: cancel,
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	p.SetKeyRules(cfg.Remap, cfg.Ignore)
	go p.writeLoop()
	return p
}

// Handle applies one raw event. It blocks only while the entry queue is
// full, and returns ctx's error if ctx ends first or ErrClosed if Close
// starts first.
func (p *Pipeline) Handle(ctx context.Context, ev keystroke.Event) error {
	if ev.Key.IsZero() {
		return fmt.Errorf("%w: no key", ErrInvalidEvent)
	}
	if ev.Dir != keystroke.Down && ev.Dir != keystroke.Up {
		return fmt.Errorf("%w: direction %d", ErrInvalidEvent, ev.Dir)
	}
	p.events.Add(1)

	rules := p.rules.Load()
	k := rules.remap.Normalize(ev.Key)
	if k != ev.Key {
		p.log.Debug("remapped key", "raw", ev.Key.String(), "key", k.String())
	}
	if rules.ignore.Contains(k) {
		p.ignored.Add(1)
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	if ev.Dir == keystroke.Up {
		res := p.tracker.Up(k)
		if res.Orphan {
			p.orphans.Add(1)
		}
		p.collected.Add(uint64(len(res.Collected)))
		return nil
	}

	combo, ok := p.tracker.Down(k)
	if !ok {
		return nil
	}
	e := store.NewEntry(combo, p.now())
	p.emitted.Add(1)

	select {
	case p.queue <- e:
		return nil
	case <-ctx.Done():
		p.failed.Add(1)
		p.log.Warn("dropping key log entry, queue full", "combo", combo, "error", ctx.Err())
		return ctx.Err()
	case <-p.closing:
		p.failed.Add(1)
		p.log.Warn("dropping key log entry, pipeline closing", "combo", combo)
		return ErrClosed
	}
}

func (p *Pipeline) writeLoop() {
	defer close(p.done)
	for e := range p.queue {
		err := p.sink.Append(p.writeCtx, e)
		var partial *sink.PartialError
		if errors.As(err, &partial) {
			p.written.Add(1)
			p.partial.Add(1)
			p.log.Error("key log entry missing from some sinks",
				"combo", e.Combo,
				"time", e.TimeString(),
				"failed", partial.Failed,
				"sinks", partial.Total,
				"error", err,
			)
			continue
		}
		if err != nil {
			p.failed.Add(1)
			p.log.Error("dropping key log entry",
				"combo", e.Combo,
				"time", e.TimeString(),
				"error", err,
			)
			continue
		}
		p.written.Add(1)
	}
}

// Run feeds events from src until src ends or ctx is cancelled. It returns
// the source's error, if any; cancellation is not an error. Run does not
// close the pipeline or the source.
func (p *Pipeline) Run(ctx context.Context, src keystroke.Source) error {
	events, err := src.Events(ctx)
	if err != nil {
		return fmt.Errorf("start source: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				if err := src.Err(); err != nil {
					return fmt.Errorf("source: %w", err)
				}
				return nil
			}
			if err := p.Handle(ctx, ev); err != nil {
				switch {
				case errors.Is(err, ErrClosed):
					return err
				case ctx.Err() != nil:
					return nil
				default:
					p.log.Warn("skipping event", "error", err)
				}
			}
		}
	}
}

// SetKeyRules replaces the remap table and ignore set used for subsequent
// events. A nil remap uses keysym.DefaultRemap. Keys already held keep
// their state; a release that is now ignored leaves the key to the
// orphan collector.
func (p *Pipeline) SetKeyRules(remap keysym.RemapTable, ignore keysym.IgnoreSet) {
	if remap == nil {
		remap = keysym.DefaultRemap()
	}
	p.rules.Store(&keyRules{remap: remap, ignore: ignore})
}

// Held returns the keys currently considered held.
func (p *Pipeline) Held() []keysym.Symbol {
	return p.tracker.Held()
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Events:    p.events.Load(),
		Ignored:   p.ignored.Load(),
		Emitted:   p.emitted.Load(),
		Written:   p.written.Load(),
		Partial:   p.partial.Load(),
		Failed:    p.failed.Load(),
		Orphans:   p.orphans.Load(),
		Collected: p.collected.Load(),
	}
}

// Close stops accepting events, writes every queued entry and closes the
// sink. Handle calls blocked on a full queue return ErrClosed and their
// entries count as failed. If ctx ends before the queue drains, pending
// sink calls are cancelled and ctx's error is returned along with any
// close error. Close is idempotent.
func (p *Pipeline) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.closeErr = p.close(ctx)
	})
	return p.closeErr
}

func (p *Pipeline) close(ctx context.Context) error {
	close(p.closing)
	p.mu.Lock()
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	var errs []error
	select {
	case <-p.done:
	case <-ctx.Done():
		p.cancelWrite()
		<-p.done
		errs = append(errs, fmt.Errorf("flush key log: %w", ctx.Err()))
	}
	p.cancelWrite()

	if err := p.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close sink: %w", err))
	}

	st := p.Stats()
	p.log.Info("pipeline closed",
		"events", st.Events,
		"written", st.Written,
		"partial", st.Partial,
		"failed", st.Failed,
		"orphans", st.Orphans,
	)

	return errors.Join(errs...)
}
