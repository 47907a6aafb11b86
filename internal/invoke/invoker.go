package invoke

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aerostat-labs/windscout/internal/unit"
)

// Config bounds a single invocation.
type Config struct {
	MaxAttempts       int
	PerAttemptTimeout time.Duration
	BaseDelay         time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.PerAttemptTimeout <= 0 {
		c.PerAttemptTimeout = 30 * time.Second
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
}

// Invoker calls stateless compute units with bounded retries, a
// per-attempt timeout, and exponential backoff between attempts.
type Invoker struct {
	units *unit.Registry
	cfg   Config
	logf  func(format string, args ...any)
}

// New creates an invoker over the given unit registry.
func New(units *unit.Registry, cfg Config) *Invoker {
	cfg.applyDefaults()
	return &Invoker{
		units: units,
		cfg:   cfg,
		logf:  func(string, ...any) {},
	}
}

// SetLogf installs a progress sink for per-attempt diagnostics.
func (iv *Invoker) SetLogf(f func(format string, args ...any)) {
	if f != nil {
		iv.logf = f
	}
}

// MaxLatency is the worst-case blocking time of one Invoke call,
// excluding backoff. Callers size request timeouts from this.
func (iv *Invoker) MaxLatency() time.Duration {
	return time.Duration(iv.cfg.MaxAttempts) * iv.cfg.PerAttemptTimeout
}

// Invoke calls the named unit until it succeeds, the attempt budget is
// exhausted, a permanent failure occurs, or the caller's context ends.
// A budget-exhausted or permanent failure surfaces as *StageError whose
// root cause is the final attempt's error only. Caller cancellation
// surfaces as the context's error, not a StageError.
func (iv *Invoker) Invoke(ctx context.Context, unitName string, in unit.Input) (*unit.Output, error) {
	u, ok := iv.units.Get(unitName)
	if !ok {
		return nil, &StageError{Unit: unitName, Root: fmt.Sprintf("no unit registered under %q", unitName)}
	}

	var attempts []Attempt
	var lastErr error

	for i := 0; i < iv.cfg.MaxAttempts; i++ {
		if i > 0 {
			delay := iv.cfg.BaseDelay * (1 << (i - 1))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("invoke %s: %w", unitName, ctx.Err())
			case <-time.After(delay):
			}
		}

		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, iv.cfg.PerAttemptTimeout)
		out, err := u.Execute(attemptCtx, in)
		cancel()
		latency := time.Since(start)

		if err == nil && out != nil && !out.Success {
			// The unit ran and rejected the work; repeating the same
			// payload cannot change its mind.
			msg := out.ErrorMessage
			if msg == "" {
				msg = "unit reported failure without a message"
			}
			err = Permanent(errors.New(msg))
		}
		if err == nil {
			iv.logf("unit %s attempt %d succeeded in %s", unitName, i+1, latency.Round(time.Millisecond))
			return out, nil
		}

		attempts = append(attempts, Attempt{
			Index:     i + 1,
			Unit:      unitName,
			Error:     err.Error(),
			LatencyMs: latency.Milliseconds(),
		})
		iv.logf("unit %s attempt %d/%d failed: %s", unitName, i+1, iv.cfg.MaxAttempts, err)
		lastErr = err

		if isPermanent(err) {
			break
		}
		if ctx.Err() != nil {
			// The attempt died because the caller went away, not
			// because the unit is unhealthy.
			return nil, fmt.Errorf("invoke %s: %w", unitName, ctx.Err())
		}
	}

	return nil, &StageError{
		Unit:     unitName,
		Root:     lastErr.Error(),
		Attempts: attempts,
	}
}
