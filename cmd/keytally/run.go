package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"keytally/internal/config"
	"keytally/internal/keystroke"
	"keytally/internal/logging"
)

// shutdownTimeout bounds how long queued entries may take to flush.
const shutdownTimeout = 10 * time.Second

var runDevices []string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture keyboards and log combos",
	Long: `Reads key events from the configured keyboards, tracks which keys are
held and writes one combo per keystroke to the enabled sinks.

Changes to keys.ignore and keys.remap in the config file apply without a
restart. Stop with SIGINT or SIGTERM; queued entries are flushed first.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSliceVarP(&runDevices, "device", "d", nil,
		"evdev device to read (repeatable; default: source.devices or every keyboard)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	path := configPath()
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if err := applyFlags(cfg); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	runID := logging.NewRunID()
	log := logger.WithRunID(runID)
	crash := logging.NewCrashHandler(cfg.CrashDir(), version, runID, log)
	defer crash.Recover()
	if reports, err := crash.CrashReports(); err == nil && len(reports) > 0 {
		last := reports[len(reports)-1]
		log.Warn("earlier run crashed, see keytally crashes",
			"reports", len(reports),
			"last", last.Timestamp,
			"last_run_id", last.RunID,
		)
	}

	for _, w := range config.Check(cfg).Warnings() {
		log.Warn("config warning", "field", w.Field, "message", w.Message)
	}

	devices := runDevices
	if len(devices) == 0 {
		devices = cfg.Source.Devices
	}
	src := keystroke.NewEvdev(log.Logger, devices...)
	defer src.Close()
	if ok, msg := src.Available(); !ok {
		return fmt.Errorf("%w: %s", keystroke.ErrNotAvailable, msg)
	}

	out, err := openSinks(cfg, log.Logger)
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg, out, log.Logger)
	if err != nil {
		out.Close()
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	ctx = logging.ContextWithRunID(ctx, runID)

	loader.OnChange(func(c *config.Config) {
		remap, ignore, err := keyRules(c)
		if err != nil {
			log.Warn("config reload ignored", "error", err)
			return
		}
		p.SetKeyRules(remap, ignore)
		log.Info("key rules reloaded", "ignore", len(ignore), "remap", len(remap))
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config changes will not be picked up", "path", path, "error", err)
	} else {
		defer loader.Close()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case err := <-loader.Errors():
					log.Warn("config watch", "error", err)
				}
			}
		}()
	}

	log.Info("keytally started",
		"version", version,
		"config", path,
		"sinks", fmt.Sprint(out),
		"gc_threshold", cfg.Keys.GCThreshold,
	)

	runErr := p.Run(ctx, src)
	if runErr != nil {
		log.Error("event source failed", "error", runErr)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	closeErr := p.Close(closeCtx)

	st := p.Stats()
	log.Info("keytally stopped",
		"entries", st.Written,
		"partial", st.Partial,
		"failed", st.Failed,
		"orphans", st.Orphans,
		"collected", st.Collected,
	)

	return errors.Join(runErr, closeErr)
}
