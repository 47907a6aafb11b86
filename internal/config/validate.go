package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// recognizedBackends is the set of valid store backends.
var recognizedBackends = map[string]bool{
	"file":     true,
	"postgres": true,
}

// recognizedLocalUnits is the set of units with built-in
// implementations; anything else must point at an HTTP worker.
var recognizedLocalUnits = map[string]bool{
	"survey":     true,
	"layout":     true,
	"simulation": true,
	"report":     true,
	"windrose":   true,
}

// Validate checks a Config for structural and semantic errors. It
// returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	checkDuration(&errs, "server.read_timeout", cfg.Server.ReadTimeout)
	checkDuration(&errs, "server.write_timeout", cfg.Server.WriteTimeout)

	if !recognizedBackends[cfg.Store.Backend] {
		errs = append(errs, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unrecognized backend %q (want file or postgres)", cfg.Store.Backend),
		})
	}
	if cfg.Store.Backend == "file" && cfg.Store.Dir == "" {
		errs = append(errs, ValidationError{Field: "store.dir", Message: "is required for the file backend"})
	}
	if cfg.Store.Backend == "postgres" && cfg.Store.DSN == "" {
		errs = append(errs, ValidationError{
			Field:   "store.dsn",
			Message: "is required for the postgres backend (or set WINDSCOUT_DB_DSN)",
		})
	}

	if cfg.Routing.DefaultCapability == "" {
		errs = append(errs, ValidationError{Field: "routing.default_capability", Message: "is required"})
	}
	if cfg.Routing.MinConfidence < 0 || cfg.Routing.MinConfidence > 100 {
		errs = append(errs, ValidationError{
			Field:   "routing.min_confidence",
			Message: fmt.Sprintf("%d is outside 0-100", cfg.Routing.MinConfidence),
		})
	}

	if cfg.Invoker.MaxAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "invoker.max_attempts",
			Message: "must be at least 1",
		})
	}
	checkDuration(&errs, "invoker.per_attempt_timeout", cfg.Invoker.PerAttemptTimeout)
	checkDuration(&errs, "invoker.base_delay", cfg.Invoker.BaseDelay)

	for name, u := range cfg.Units {
		prefix := fmt.Sprintf("units.%s", name)
		switch u.Kind {
		case "local":
			if !recognizedLocalUnits[name] {
				errs = append(errs, ValidationError{
					Field:   prefix + ".kind",
					Message: fmt.Sprintf("no built-in implementation for unit %q", name),
				})
			}
		case "http":
			if u.URL == "" {
				errs = append(errs, ValidationError{
					Field:   prefix + ".url",
					Message: "is required for an http unit",
				})
			}
		default:
			errs = append(errs, ValidationError{
				Field:   prefix + ".kind",
				Message: fmt.Sprintf("unrecognized kind %q (want local or http)", u.Kind),
			})
		}
		checkDuration(&errs, prefix+".timeout", u.Timeout)
	}

	if cfg.Queue.Workers < 1 {
		errs = append(errs, ValidationError{Field: "queue.workers", Message: "must be at least 1"})
	}
	checkDuration(&errs, "queue.poll_interval", cfg.Queue.PollInterval)

	return errs
}

// checkDuration appends an error when a non-empty duration string does
// not parse.
func checkDuration(errs *[]ValidationError, field, value string) {
	if value == "" {
		return
	}
	if _, err := time.ParseDuration(value); err != nil {
		*errs = append(*errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid duration %q", value),
		})
	}
}
