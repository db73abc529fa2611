package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keytally/internal/keystroke"
	"keytally/internal/keysym"
	"keytally/internal/sink"
	"keytally/internal/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var (
	a = keysym.Char('a')
	c = keysym.Char('c')
)

func newTestPipeline(t *testing.T, cfg Config) (*Pipeline, *sink.Memory) {
	t.Helper()
	mem := &sink.Memory{}
	cfg.Logger = discard
	p := New(mem, cfg)
	t.Cleanup(func() { p.Close(context.Background()) })
	return p, mem
}

func down(t *testing.T, p *Pipeline, k keysym.Symbol) {
	t.Helper()
	require.NoError(t, p.Handle(context.Background(), keystroke.Event{Key: k, Dir: keystroke.Down}))
}

func up(t *testing.T, p *Pipeline, k keysym.Symbol) {
	t.Helper()
	require.NoError(t, p.Handle(context.Background(), keystroke.Event{Key: k, Dir: keystroke.Up}))
}

func tap(t *testing.T, p *Pipeline, keys ...keysym.Symbol) {
	t.Helper()
	for _, k := range keys {
		down(t, p, k)
		up(t, p, k)
	}
}

// flush closes p so every queued entry has reached the sink.
func flush(t *testing.T, p *Pipeline) {
	t.Helper()
	require.NoError(t, p.Close(context.Background()))
}

func TestTyping(t *testing.T) {
	p, mem := newTestPipeline(t, Config{})
	tap(t, p, keysym.Char('h'), keysym.Char('i'), keysym.Enter)
	flush(t, p)

	assert.Equal(t, []string{"h", "i", "<enter>"}, mem.Combos())
	assert.True(t, mem.Closed())

	st := p.Stats()
	assert.EqualValues(t, 6, st.Events)
	assert.EqualValues(t, 3, st.Emitted)
	assert.EqualValues(t, 3, st.Written)
	assert.Zero(t, st.Orphans)
}

func TestLeftRightVariantsProduceSameCombo(t *testing.T) {
	p, mem := newTestPipeline(t, Config{})

	down(t, p, keysym.CtrlL)
	tap(t, p, c)
	up(t, p, keysym.CtrlL)

	down(t, p, keysym.CtrlR)
	tap(t, p, c)
	up(t, p, keysym.CtrlR)
	flush(t, p)

	assert.Equal(t, []string{"<ctrl> + c", "<ctrl> + c"}, mem.Combos())
	assert.Zero(t, p.Stats().Orphans)
}

func TestModifiersSortedAfterNormalization(t *testing.T) {
	p, mem := newTestPipeline(t, Config{})

	down(t, p, keysym.ShiftR)
	down(t, p, keysym.CmdL)
	down(t, p, keysym.AltL)
	tap(t, p, keysym.Char('Z'))
	flush(t, p)

	assert.Equal(t, []string{"<alt> + <cmd> + <shift> + Z"}, mem.Combos())
}

func TestShiftCollapseEndToEnd(t *testing.T) {
	p, mem := newTestPipeline(t, Config{})

	down(t, p, keysym.ShiftL)
	tap(t, p, keysym.Char('A'))
	tap(t, p, keysym.Tab)
	up(t, p, keysym.ShiftL)
	flush(t, p)

	assert.Equal(t, []string{"A", "<shift> + <tab>"}, mem.Combos())
}

func TestCustomRemap(t *testing.T) {
	remap := keysym.DefaultRemap().With(keysym.RemapTable{keysym.AltGr: keysym.Alt})
	p, mem := newTestPipeline(t, Config{Remap: remap})

	down(t, p, keysym.AltGr)
	tap(t, p, keysym.Char('e'))
	up(t, p, keysym.AltGr)
	flush(t, p)

	assert.Equal(t, []string{"<alt> + e"}, mem.Combos())
}

func TestSetKeyRules(t *testing.T) {
	p, mem := newTestPipeline(t, Config{})

	down(t, p, keysym.AltGr)
	tap(t, p, keysym.Char('e'))
	up(t, p, keysym.AltGr)

	p.SetKeyRules(keysym.DefaultRemap().With(keysym.RemapTable{keysym.AltGr: keysym.Alt}),
		keysym.NewIgnoreSet(keysym.CapsLock))

	down(t, p, keysym.AltGr)
	tap(t, p, keysym.Char('e'))
	up(t, p, keysym.AltGr)
	tap(t, p, keysym.CapsLock)

	p.SetKeyRules(nil, nil)
	down(t, p, keysym.ShiftR)
	tap(t, p, keysym.Tab)
	up(t, p, keysym.ShiftR)
	flush(t, p)

	assert.Equal(t, []string{"<alt_gr>", "e", "<alt> + e", "<shift> + <tab>"}, mem.Combos())
	assert.EqualValues(t, 2, p.Stats().Ignored)
}

func TestIgnoredKeyNeverReachesTracker(t *testing.T) {
	p, mem := newTestPipeline(t, Config{Ignore: keysym.NewIgnoreSet(keysym.Cmd)})

	// cmd_l normalizes to <cmd>, which is ignored in both directions
	down(t, p, keysym.CmdL)
	tap(t, p, c)
	assert.Empty(t, p.Held())
	up(t, p, keysym.CmdL)
	flush(t, p)

	assert.Equal(t, []string{"c"}, mem.Combos())
	st := p.Stats()
	assert.EqualValues(t, 2, st.Ignored)
	assert.Zero(t, st.Orphans, "ignored key-up must not count as an orphan")
}

func TestIgnoredNonModifierEmitsNothing(t *testing.T) {
	p, mem := newTestPipeline(t, Config{Ignore: keysym.NewIgnoreSet(keysym.CapsLock)})
	tap(t, p, keysym.CapsLock, a)
	flush(t, p)
	assert.Equal(t, []string{"a"}, mem.Combos())
}

func TestAutoRepeatSuppressed(t *testing.T) {
	p, mem := newTestPipeline(t, Config{})
	for i := 0; i < 10; i++ {
		down(t, p, a)
	}
	up(t, p, a)
	flush(t, p)
	assert.Equal(t, []string{"a"}, mem.Combos())
}

func TestShiftedSymbolLocksIn(t *testing.T) {
	p, mem := newTestPipeline(t, Config{})

	down(t, p, keysym.ShiftL)
	down(t, p, keysym.Char('!'))
	up(t, p, keysym.ShiftL)
	up(t, p, keysym.Char('1'))

	assert.Equal(t, []keysym.Symbol{keysym.Char('!')}, p.Held())
	flush(t, p)

	assert.Equal(t, []string{"!"}, mem.Combos())
	assert.EqualValues(t, 1, p.Stats().Orphans)
}

func TestGarbageCollectionEndToEnd(t *testing.T) {
	p, _ := newTestPipeline(t, Config{GCThreshold: 3})

	for _, r := range "xyz" {
		down(t, p, keysym.Char(r))
	}
	up(t, p, keysym.Char('q'))

	assert.Empty(t, p.Held())
	assert.EqualValues(t, 3, p.Stats().Collected)
}

func TestEntriesStampedInUTC(t *testing.T) {
	at := time.Date(2024, 3, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600))
	p, mem := newTestPipeline(t, Config{Now: func() time.Time { return at }})
	tap(t, p, a)
	flush(t, p)

	entries := mem.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, time.UTC, entries[0].Time.Location())
	assert.Equal(t, "2024-03-01T12:00:00.000000", entries[0].TimeString())
}

// slowSink delays every append so the queue fills up.
type slowSink struct {
	sink.Memory
	delay time.Duration
}

func (s *slowSink) Append(ctx context.Context, e store.Entry) error {
	time.Sleep(s.delay)
	return s.Memory.Append(ctx, e)
}

func TestOrderPreservedUnderBackPressure(t *testing.T) {
	slow := &slowSink{delay: time.Millisecond}
	p := New(slow, Config{QueueSize: 1, Logger: discard})

	var want []string
	for i := 0; i < 50; i++ {
		k := keysym.Char(rune('a' + i%26))
		if i%2 == 1 {
			k = keysym.Function(i%12 + 1)
		}
		down(t, p, k)
		up(t, p, k)
		want = append(want, k.String())
	}
	require.NoError(t, p.Close(context.Background()))

	assert.Equal(t, want, slow.Combos())
	assert.EqualValues(t, 50, p.Stats().Written)
}

func TestConcurrentHandlePreservesEmitOrder(t *testing.T) {
	p, mem := newTestPipeline(t, Config{})

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			k := keysym.Function(g + 1)
			for i := 0; i < 25; i++ {
				p.Handle(context.Background(), keystroke.Event{Key: k, Dir: keystroke.Down})
				p.Handle(context.Background(), keystroke.Event{Key: k, Dir: keystroke.Up})
			}
		}(g)
	}
	wg.Wait()
	flush(t, p)

	st := p.Stats()
	assert.Equal(t, st.Emitted, st.Written)
	assert.Len(t, mem.Combos(), int(st.Emitted))
}

func TestSinkFailureDropsOnlyThatEntry(t *testing.T) {
	mem := &sink.Memory{Fail: func(e store.Entry) error {
		if e.Combo == "b" {
			return errors.New("disk full")
		}
		return nil
	}}
	p := New(mem, Config{Logger: discard})

	tap(t, p, a, keysym.Char('b'), c)
	require.NoError(t, p.Close(context.Background()))

	assert.Equal(t, []string{"a", "c"}, mem.Combos())
	st := p.Stats()
	assert.EqualValues(t, 1, st.Failed)
	assert.EqualValues(t, 2, st.Written)
}

func TestHandleAfterClose(t *testing.T) {
	p, _ := newTestPipeline(t, Config{})
	flush(t, p)

	err := p.Handle(context.Background(), keystroke.Event{Key: a, Dir: keystroke.Down})
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, p.Close(context.Background()), "close is idempotent")
}

func TestInvalidEvents(t *testing.T) {
	p, _ := newTestPipeline(t, Config{})

	err := p.Handle(context.Background(), keystroke.Event{Dir: keystroke.Down})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	err = p.Handle(context.Background(), keystroke.Event{Key: a})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

// blockingSink never completes an append until its context ends.
type blockingSink struct {
	closed  bool
	started chan struct{}
}

func (b *blockingSink) Append(ctx context.Context, e store.Entry) error {
	if b.started != nil {
		select {
		case b.started <- struct{}{}:
		default:
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (b *blockingSink) Close() error {
	b.closed = true
	return nil
}

func TestCloseDeadline(t *testing.T) {
	bs := &blockingSink{}
	p := New(bs, Config{Logger: discard})
	tap(t, p, a)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, bs.closed)
	assert.EqualValues(t, 1, p.Stats().Failed)
}

func TestRunReplay(t *testing.T) {
	p, mem := newTestPipeline(t, Config{})

	session := strings.Join([]string{
		"# hi, then ctrl+c",
		"down h", "up h",
		"down i", "up i",
		"down ctrl_r", "down c", "up c", "up ctrl_r",
	}, "\n")
	src := keystroke.NewReplay(strings.NewReader(session))
	defer src.Close()

	require.NoError(t, p.Run(context.Background(), src))
	flush(t, p)

	assert.Equal(t, []string{"h", "i", "<ctrl> + c"}, mem.Combos())
}

func TestRunReturnsSourceError(t *testing.T) {
	p, mem := newTestPipeline(t, Config{})

	src := keystroke.NewReplay(strings.NewReader("down a\nup a\nsideways\n"))
	defer src.Close()

	err := p.Run(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")

	flush(t, p)
	assert.Equal(t, []string{"a"}, mem.Combos())
}

func TestRunStopsOnCancel(t *testing.T) {
	p, mem := newTestPipeline(t, Config{})
	src := keystroke.NewSimulated(8)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx, src) }()

	require.NoError(t, src.Tap(a, c))
	require.Eventually(t, func() bool { return p.Stats().Events == 4 }, 5*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	flush(t, p)
	assert.Equal(t, []string{"a", "c"}, mem.Combos())
}

func TestRunSourceStartFailure(t *testing.T) {
	p, _ := newTestPipeline(t, Config{})
	src := keystroke.NewSimulated(1)
	defer src.Close()

	_, err := src.Events(context.Background())
	require.NoError(t, err)

	err = p.Run(context.Background(), src)
	assert.ErrorIs(t, err, keystroke.ErrAlreadyRunning)
}

func ExamplePipeline() {
	mem := &sink.Memory{}
	p := New(mem, Config{Logger: discard})
	ctx := context.Background()

	for _, ev := range []keystroke.Event{
		{Key: keysym.ShiftL, Dir: keystroke.Down},
		{Key: keysym.Char('H'), Dir: keystroke.Down},
		{Key: keysym.Char('H'), Dir: keystroke.Up},
		{Key: keysym.ShiftL, Dir: keystroke.Up},
		{Key: keysym.CtrlL, Dir: keystroke.Down},
		{Key: keysym.Char('s'), Dir: keystroke.Down},
	} {
		p.Handle(ctx, ev)
	}
	p.Close(ctx)

	fmt.Println(mem.Combos())
	// Output: [H <ctrl> + s]
}

func TestCloseDeadlineWithBlockedHandle(t *testing.T) {
	bs := &blockingSink{started: make(chan struct{}, 1)}
	p := New(bs, Config{QueueSize: 1, Logger: discard})

	tap(t, p, a)
	select {
	case <-bs.started:
	case <-time.After(2 * time.Second):
		t.Fatal("writer never reached the sink")
	}
	tap(t, p, keysym.Char('b'))

	blocked := make(chan error, 1)
	go func() {
		blocked <- p.Handle(context.Background(), keystroke.Event{Key: c, Dir: keystroke.Down})
	}()
	require.Eventually(t, func() bool { return p.Stats().Emitted == 3 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Handle still blocked after Close")
	}

	st := p.Stats()
	assert.EqualValues(t, 3, st.Emitted)
	assert.EqualValues(t, 3, st.Failed)
	assert.Zero(t, st.Written)
	assert.True(t, bs.closed)
}

func TestPartialSinkFailureCountsAsWritten(t *testing.T) {
	good := &sink.Memory{}
	failing := &sink.Memory{Fail: func(store.Entry) error { return errors.New("disk full") }}
	p := New(sink.Multi{good, failing}, Config{Logger: discard})

	tap(t, p, a)
	require.NoError(t, p.Close(context.Background()))

	assert.Equal(t, []string{"a"}, good.Combos())
	st := p.Stats()
	assert.EqualValues(t, 1, st.Written)
	assert.EqualValues(t, 1, st.Partial)
	assert.Zero(t, st.Failed)
}
