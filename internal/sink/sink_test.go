package sink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keytally/internal/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func entry(combo string) store.Entry {
	return store.NewEntry(combo, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestMultiDeliversToAll(t *testing.T) {
	a, b := &Memory{}, &Memory{}
	m := Multi{a, b}

	require.NoError(t, m.Append(context.Background(), entry("x")))
	require.NoError(t, m.Append(context.Background(), entry("<ctrl> + c")))

	assert.Equal(t, []string{"x", "<ctrl> + c"}, a.Combos())
	assert.Equal(t, a.Combos(), b.Combos())

	require.NoError(t, m.Close())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
}

func TestMultiContinuesAfterFailure(t *testing.T) {
	boom := errors.New("disk full")
	failing := &Memory{Fail: func(store.Entry) error { return boom }}
	ok := &Memory{}

	err := Multi{failing, ok}.Append(context.Background(), entry("a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, ok.Combos())

	var partial *PartialError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 1, partial.Failed)
	assert.Equal(t, 2, partial.Total)
}

func TestMultiJoinsErrors(t *testing.T) {
	e1, e2 := errors.New("one"), errors.New("two")
	m := Multi{
		&Memory{Fail: func(store.Entry) error { return e1 }},
		&Memory{Fail: func(store.Entry) error { return e2 }},
	}
	err := m.Append(context.Background(), entry("a"))
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)

	var partial *PartialError
	assert.False(t, errors.As(err, &partial), "no sink accepted the entry")
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	mem := &Memory{Fail: func(store.Entry) error {
		calls++
		if calls < 3 {
			return errors.New("busy")
		}
		return nil
	}}

	r := WithRetry(mem, 2, time.Millisecond, discard)
	require.NoError(t, r.Append(context.Background(), entry("a")))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{"a"}, mem.Combos())
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	boom := errors.New("locked")
	mem := &Memory{Fail: func(store.Entry) error {
		calls++
		return boom
	}}

	r := WithRetry(mem, 2, time.Millisecond, discard)
	assert.ErrorIs(t, r.Append(context.Background(), entry("a")), boom)
	assert.Equal(t, 3, calls)
	assert.Empty(t, mem.Combos())
}

func TestRetryDoesNotRetryClosed(t *testing.T) {
	mem := &Memory{}
	require.NoError(t, mem.Close())

	r := WithRetry(mem, 5, time.Hour, discard)
	assert.ErrorIs(t, r.Append(context.Background(), entry("a")), ErrClosed)
}

func TestRetryHonoursCancellation(t *testing.T) {
	mem := &Memory{Fail: func(store.Entry) error { return errors.New("busy") }}
	r := WithRetry(mem, 10, time.Hour, discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Append(ctx, entry("a"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMultiOfRetryWritesOnce(t *testing.T) {
	calls := 0
	flaky := &Memory{Fail: func(store.Entry) error {
		calls++
		if calls == 1 {
			return errors.New("busy")
		}
		return nil
	}}
	steady := &Memory{}

	m := Multi{WithRetry(flaky, 2, time.Millisecond, discard), steady}
	require.NoError(t, m.Append(context.Background(), entry("a")))
	assert.Equal(t, []string{"a"}, flaky.Combos())
	assert.Equal(t, []string{"a"}, steady.Combos())
}

func TestSQLiteSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key_log.sqlite")
	s, err := OpenSQLite(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, entry("h")))
	require.NoError(t, s.Append(ctx, entry("i")))
	assert.Equal(t, "sqlite:"+path, s.String())

	entries, err := s.Store().Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "i", entries[1].Combo)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Append(ctx, entry("x")), store.ErrClosed)
}

func TestFileSinkAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "key_log.txt")
	f, err := OpenFile(path, discard)
	require.NoError(t, err)

	ctx := context.Background()
	for _, c := range []string{"a", "<shift> + <tab>", `\`} {
		require.NoError(t, f.Append(ctx, entry(c)))
	}
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\n<shift> + <tab>\n\\\n", string(data))

	assert.ErrorIs(t, f.Append(ctx, entry("b")), ErrClosed)
}

func TestFileSinkAppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key_log.txt")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0600))

	f, err := OpenFile(path, discard)
	require.NoError(t, err)
	require.NoError(t, f.Append(context.Background(), entry("new")))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))
}

func TestFileSinkReopensAfterRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key_log.txt")
	f, err := OpenFile(path, discard)
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()
	require.NoError(t, f.Append(ctx, entry("before")))

	rotated := filepath.Join(dir, "key_log.txt.1")
	require.NoError(t, os.Rename(path, rotated))

	select {
	case <-f.reopened:
	case <-time.After(5 * time.Second):
		t.Fatal("file was not reopened after rename")
	}

	require.NoError(t, f.Append(ctx, entry("after")))

	old, err := os.ReadFile(rotated)
	require.NoError(t, err)
	assert.Equal(t, "before\n", string(old))

	fresh, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "after\n", string(fresh))
}

func TestWriterSink(t *testing.T) {
	var buf strings.Builder
	w := NewWriter(&buf, false)
	ctx := context.Background()

	require.NoError(t, w.Append(ctx, entry("a")))
	require.NoError(t, w.Append(ctx, entry("<ctrl> + c")))
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Append(ctx, entry("b")), ErrClosed)

	assert.Equal(t, "a\n<ctrl> + c\n", buf.String())
}

func TestWriterSinkWithTime(t *testing.T) {
	var buf strings.Builder
	w := NewWriter(&buf, true)
	require.NoError(t, w.Append(context.Background(), entry("a")))
	assert.Equal(t, "2024-03-01T12:00:00.000000\ta\n", buf.String())
}
