package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keytally/internal/logging"
)

// setupHome isolates config and data in a temp dir and returns it.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("KEYTALLY_HOME", home)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, v := range []string{"KEYTALLY_DB", "KEYTALLY_LOG_LEVEL", "KEYTALLY_LOG_FILE", "KEYTALLY_GC_THRESHOLD"} {
		t.Setenv(v, "")
	}
	t.Chdir(t.TempDir())
	return home
}

// execute runs the root command with flag globals reset.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	configFlag, logLevelFlag = "", ""
	replayStdout, replayTimes = false, false
	statsLimit, statsFile, statsFormat = 20, "", "table"
	configFormat = "toml"
	initForce = false
	runDevices = nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeReplay(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600))
	return path
}

func TestReplayToStdout(t *testing.T) {
	setupHome(t)
	path := writeReplay(t,
		"# ctrl+c then h",
		"down ctrl_l",
		"down c",
		"up c",
		"up ctrl_l",
		"down h",
		"up h",
	)

	out, err := execute(t, "replay", "--stdout", path)
	require.NoError(t, err)
	assert.Equal(t, "<ctrl> + c\nh\n", out)
}

func TestReplayMalformedFile(t *testing.T) {
	setupHome(t)
	path := writeReplay(t, "down a", "sideways b")

	_, err := execute(t, "replay", "--stdout", path)
	assert.ErrorContains(t, err, "line 2")
}

func TestReplayThenStats(t *testing.T) {
	home := setupHome(t)
	path := writeReplay(t,
		"down t", "up t",
		"down h", "up h",
		"down e", "up e",
		"down t", "up t",
		"down h", "up h",
	)

	_, err := execute(t, "replay", path)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, "key_log.sqlite"))

	out, err := execute(t, "stats", "keys")
	require.NoError(t, err)
	assert.Contains(t, out, "Combo")
	assert.Contains(t, out, "40.00%")

	out, err = execute(t, "stats", "bigrams", "--format", "json")
	require.NoError(t, err)

	var rows []statRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.NotEmpty(t, rows)
	assert.Equal(t, "th", rows[0].Item)
	assert.EqualValues(t, 2, rows[0].Count)
	assert.InDelta(t, 0.5, rows[0].Frequency, 1e-9)
}

func TestStatsFromFile(t *testing.T) {
	setupHome(t)
	log := filepath.Join(t.TempDir(), "key_log.txt")
	require.NoError(t, os.WriteFile(log, []byte("t\nh\ne\n<ctrl> + c\nt\nh\ne\n"), 0600))

	out, err := execute(t, "stats", "trigrams", "--file", log, "--format", "json")
	require.NoError(t, err)

	var rows []statRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "the", rows[0].Item)
	assert.EqualValues(t, 2, rows[0].Count)
}

func TestStatsWithoutDatabase(t *testing.T) {
	setupHome(t)
	_, err := execute(t, "stats")
	assert.ErrorContains(t, err, "no key log")
}

func TestStatsRejectsUnknownView(t *testing.T) {
	setupHome(t)
	_, err := execute(t, "stats", "quadgrams")
	assert.Error(t, err)
}

func TestInit(t *testing.T) {
	home := setupHome(t)

	out, err := execute(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote config")
	assert.Contains(t, out, "Entries:        0")
	assert.FileExists(t, filepath.Join(home, "config.toml"))
	assert.FileExists(t, filepath.Join(home, "key_log.sqlite"))

	out, err = execute(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Using config")
}

func TestConfigShow(t *testing.T) {
	setupHome(t)
	t.Setenv("KEYTALLY_GC_THRESHOLD", "7")

	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "gc_threshold = 7")

	out, err = execute(t, "config", "show", "--format", "json")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Contains(t, doc, "keys")
}

func TestConfigCheckWarnings(t *testing.T) {
	home := setupHome(t)
	path := filepath.Join(home, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[keys]\nignore = [\"cmd_l\"]\n"), 0600))

	out, err := execute(t, "config", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "warning: keys.ignore[0]")
	assert.Contains(t, out, "ok (1 warnings)")
}

func TestConfigCheckRejectsUnknownKey(t *testing.T) {
	home := setupHome(t)
	path := filepath.Join(home, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[sinks]\nsqlite = true\n"), 0600))

	_, err := execute(t, "config", "check")
	assert.Error(t, err)
}

func TestLogLevelFlagValidated(t *testing.T) {
	setupHome(t)
	_, err := execute(t, "config", "show", "--log-level", "chatty")
	assert.Error(t, err)
}

func TestSignalContextCancelsOnInterrupt(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("interrupt cannot be sent to self on windows")
	}
	ctx, stop := signalContext(context.Background())
	defer stop()

	self, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, self.Signal(os.Interrupt))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by interrupt")
	}
}

func TestCrashesListsReports(t *testing.T) {
	home := setupHome(t)

	out, err := execute(t, "crashes")
	require.NoError(t, err)
	assert.Contains(t, out, "no crash reports")

	h := logging.NewCrashHandler(filepath.Join(home, "crashes"), "1.0.0", "run-42", nil)
	_, err = h.HandlePanic("index out of range", []byte("goroutine 1 [running]:"))
	require.NoError(t, err)

	out, err = execute(t, "crashes")
	require.NoError(t, err)
	assert.Contains(t, out, "index out of range")
	assert.Contains(t, out, "run-42")
}
