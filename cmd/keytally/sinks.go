package main

import (
	"errors"
	"fmt"
	"log/slog"

	"keytally/internal/config"
	"keytally/internal/keysym"
	"keytally/internal/pipeline"
	"keytally/internal/sink"
)

// openSinks opens every enabled sink, each wrapped in its own retry.
func openSinks(cfg *config.Config, log *slog.Logger) (sink.Sink, error) {
	var out sink.Multi

	if cfg.Sinks.SQLiteEnabled {
		s, err := sink.OpenSQLite(cfg.DatabasePath())
		if err != nil {
			return nil, err
		}
		out = append(out, sink.WithRetry(s, cfg.Sinks.Retries, cfg.RetryBackoff(), log))
	}

	if cfg.Sinks.FileEnabled {
		f, err := sink.OpenFile(cfg.KeyLogFilePath(), log)
		if err != nil {
			return nil, errors.Join(err, out.Close())
		}
		out = append(out, sink.WithRetry(f, cfg.Sinks.Retries, cfg.RetryBackoff(), log))
	}

	switch len(out) {
	case 0:
		return nil, fmt.Errorf("no sinks enabled")
	case 1:
		return out[0], nil
	default:
		return out, nil
	}
}

func keyRules(cfg *config.Config) (keysym.RemapTable, keysym.IgnoreSet, error) {
	remap, err := cfg.RemapTable()
	if err != nil {
		return nil, nil, err
	}
	ignore, err := cfg.IgnoreSet()
	if err != nil {
		return nil, nil, err
	}
	return remap, ignore, nil
}

// newPipeline builds a pipeline from cfg writing to out.
func newPipeline(cfg *config.Config, out sink.Sink, log *slog.Logger) (*pipeline.Pipeline, error) {
	remap, ignore, err := keyRules(cfg)
	if err != nil {
		return nil, err
	}
	return pipeline.New(out, pipeline.Config{
		Remap:       remap,
		Ignore:      ignore,
		GCThreshold: cfg.Keys.GCThreshold,
		QueueSize:   cfg.Pipeline.QueueSize,
		Logger:      log,
	}), nil
}
