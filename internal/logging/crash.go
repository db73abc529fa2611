package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"time"
)

// CrashReport represents information about a crash. It never includes
// key log content.
type CrashReport struct {
	Timestamp    time.Time `json:"timestamp"`
	Version      string    `json:"version"`
	GOOS         string    `json:"goos"`
	GOARCH       string    `json:"goarch"`
	NumGoroutine int       `json:"num_goroutine"`
	PanicValue   string    `json:"panic_value"`
	StackTrace   string    `json:"stack_trace"`
	RunID        string    `json:"run_id,omitempty"`
}

// CrashHandler writes crash reports for panics on the calling goroutine.
type CrashHandler struct {
	dir     string
	version string
	runID   string
	log     *Logger
}

// NewCrashHandler returns a handler writing reports into dir.
func NewCrashHandler(dir, version, runID string, log *Logger) *CrashHandler {
	return &CrashHandler{dir: dir, version: version, runID: runID, log: log}
}

// Recover must be deferred directly. It records the panic and re-panics.
func (h *CrashHandler) Recover() {
	if r := recover(); r != nil {
		path, err := h.HandlePanic(r, debug.Stack())
		if h.log != nil {
			if err != nil {
				h.log.Error("write crash report", "error", err)
			} else {
				h.log.Error("crashed", "panic", fmt.Sprint(r), "report", path)
			}
			h.log.Sync()
		}
		panic(r)
	}
}

// HandlePanic writes a crash report and returns its path.
func (h *CrashHandler) HandlePanic(panicValue any, stack []byte) (string, error) {
	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", panicValue),
		StackTrace:   string(stack),
		RunID:        h.runID,
	}

	if err := os.MkdirAll(h.dir, 0700); err != nil {
		return "", fmt.Errorf("create crash directory: %w", err)
	}

	name := fmt.Sprintf("crash-%s.json", report.Timestamp.Format("20060102-150405.000"))
	path := filepath.Join(h.dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// CrashReports returns the stored reports, oldest first.
func (h *CrashHandler) CrashReports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	reports := make([]CrashReport, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		var r CrashReport
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		reports = append(reports, r)
	}
	return reports, nil
}
