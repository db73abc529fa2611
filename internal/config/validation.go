package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"keytally/internal/keysym"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
	Warning bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ErrInvalidConfig is matched by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ValidateConfig performs comprehensive validation of the configuration.
// Warnings do not fail validation; use Check to see them.
func ValidateConfig(c *Config) error {
	if errs := Check(c).Errors(); len(errs) > 0 {
		return errs
	}
	return nil
}

// Check returns every problem found in c, warnings included.
func Check(c *Config) ValidationErrors {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateSinks(&c.Sinks)...)
	errs = append(errs, validateKeys(&c.Keys)...)
	errs = append(errs, validatePipeline(&c.Pipeline)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	return errs
}

func validateSinks(s *SinksConfig) ValidationErrors {
	var errs ValidationErrors

	if !s.SQLiteEnabled && !s.FileEnabled {
		errs = append(errs, ValidationError{
			Field:   "sinks",
			Message: "at least one sink must be enabled",
		})
	}

	if s.SQLiteEnabled && s.SQLitePath == "" {
		errs = append(errs, *RequiredFieldError("sinks.sqlite_path"))
	}
	if s.FileEnabled && s.FilePath == "" {
		errs = append(errs, *RequiredFieldError("sinks.file_path"))
	}
	if s.SQLiteEnabled && s.FileEnabled && expandPath(s.SQLitePath) == expandPath(s.FilePath) {
		errs = append(errs, ValidationError{
			Field:   "sinks.file_path",
			Message: "must differ from sinks.sqlite_path",
		})
	}

	if s.Retries < 0 || s.Retries > 10 {
		errs = append(errs, *RangeError("sinks.retries", 0, 10))
	}
	if s.RetryBackoffMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "sinks.retry_backoff_ms",
			Message: "backoff cannot be negative",
		})
	}

	return errs
}

func validateKeys(k *KeysConfig) ValidationErrors {
	var errs ValidationErrors

	if k.GCThreshold < 1 {
		errs = append(errs, ValidationError{
			Field:   "keys.gc_threshold",
			Message: fmt.Sprintf("must be at least 1, got %d", k.GCThreshold),
		})
	}

	remap := keysym.DefaultRemap()
	extra, err := keysym.ParseRemap(k.Remap)
	if err != nil {
		errs = append(errs, ValidationError{Field: "keys.remap", Message: err.Error()})
	} else {
		remap = remap.With(extra)
	}

	for i, name := range k.Ignore {
		field := fmt.Sprintf("keys.ignore[%d]", i)
		sym, err := keysym.Parse(name)
		if err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
			continue
		}
		// the ignore set is checked after normalization
		if canon := remap.Normalize(sym); canon != sym {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%s is remapped to %s and will never match; list %s instead", sym, canon, canon),
				Warning: true,
			})
		}
	}

	return errs
}

func validatePipeline(p *PipelineConfig) ValidationErrors {
	var errs ValidationErrors

	if p.QueueSize < 1 || p.QueueSize > 1<<20 {
		errs = append(errs, *RangeError("pipeline.queue_size", 1, 1<<20))
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
		// Valid formats
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %q (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	return errs
}

// Helper functions

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// IsWarning returns true if this is a non-fatal validation issue.
func (e *ValidationError) IsWarning() bool {
	return e.Warning
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
