package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"keytally/internal/keystroke"
	"keytally/internal/sink"
)

var (
	replayStdout bool
	replayTimes  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Feed a recorded event file through the tracker",
	Long: `Reads "down <key>" and "up <key>" lines from a file ("-" for stdin) and
processes them exactly like live keyboard events. Entries go to the
configured sinks, or to stdout with --stdout.`,
	Example: `  printf 'down ctrl_l\ndown c\nup c\nup ctrl_l\n' | keytally replay --stdout -`,
	Args:    cobra.ExactArgs(1),
	RunE:    runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayStdout, "stdout", false, "print combos instead of writing to the configured sinks")
	replayCmd.Flags().BoolVar(&replayTimes, "times", false, "prefix printed combos with their UTC time (with --stdout)")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	var src *keystroke.Replay
	if args[0] == "-" {
		src = keystroke.NewReplay(os.Stdin)
	} else if src, err = keystroke.OpenReplay(args[0]); err != nil {
		return err
	}
	defer src.Close()

	var out sink.Sink
	if replayStdout {
		out = sink.NewWriter(cmd.OutOrStdout(), replayTimes)
	} else {
		if err := cfg.EnsureDirectories(); err != nil {
			return err
		}
		if out, err = openSinks(cfg, logger.Logger); err != nil {
			return err
		}
	}

	p, err := newPipeline(cfg, out, logger.Logger)
	if err != nil {
		out.Close()
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	runErr := p.Run(ctx, src)
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	closeErr := p.Close(closeCtx)

	st := p.Stats()
	fmt.Fprintf(cmd.ErrOrStderr(), "%d events, %d entries written, %d ignored, %d orphan releases\n",
		st.Events, st.Written, st.Ignored, st.Orphans)

	return errors.Join(runErr, closeErr)
}
