package invoke

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerostat-labs/windscout/internal/unit"
)

// scriptedUnit is a fake compute unit driven by a per-call function.
type scriptedUnit struct {
	name  string
	calls int
	fn    func(call int, ctx context.Context) (*unit.Output, error)
}

func (s *scriptedUnit) Name() string { return s.name }

func (s *scriptedUnit) Execute(ctx context.Context, in unit.Input) (*unit.Output, error) {
	s.calls++
	return s.fn(s.calls, ctx)
}

func newInvoker(u unit.Unit, cfg Config) *Invoker {
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Millisecond
	}
	return New(unit.NewRegistry(u), cfg)
}

func TestInvoke_SucceedsFirstAttempt(t *testing.T) {
	u := &scriptedUnit{name: "survey", fn: func(int, context.Context) (*unit.Output, error) {
		return &unit.Output{Success: true}, nil
	}}
	iv := newInvoker(u, Config{MaxAttempts: 3, PerAttemptTimeout: time.Second})

	out, err := iv.Invoke(context.Background(), "survey", unit.Input{})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 1, u.calls)
}

func TestInvoke_RetriesTransientThenSucceeds(t *testing.T) {
	u := &scriptedUnit{name: "survey", fn: func(call int, _ context.Context) (*unit.Output, error) {
		if call < 3 {
			return nil, errors.New("connection refused")
		}
		return &unit.Output{Success: true}, nil
	}}
	iv := newInvoker(u, Config{MaxAttempts: 3, PerAttemptTimeout: time.Second})

	out, err := iv.Invoke(context.Background(), "survey", unit.Input{})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 3, u.calls)
}

func TestInvoke_ExhaustedBudgetSurfacesLastRootCauseOnly(t *testing.T) {
	u := &scriptedUnit{name: "survey", fn: func(call int, _ context.Context) (*unit.Output, error) {
		return nil, fmt.Errorf("transient failure number %d", call)
	}}
	iv := newInvoker(u, Config{MaxAttempts: 3, PerAttemptTimeout: time.Second})

	_, err := iv.Invoke(context.Background(), "survey", unit.Input{})
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "survey", se.Unit)
	assert.Equal(t, "transient failure number 3", se.Root)
	require.Len(t, se.Attempts, 3)
	assert.Equal(t, "transient failure number 1", se.Attempts[0].Error)

	msg := err.Error()
	assert.Equal(t, "survey failed: transient failure number 3. See attempt log for history.", msg)
	assert.NotContains(t, msg, "number 1", "earlier attempts never leak into the message")
	assert.NotContains(t, msg, "number 2")
}

func TestInvoke_ErrorShapeIndependentOfBudget(t *testing.T) {
	makeErr := func(maxAttempts int) string {
		u := &scriptedUnit{name: "survey", fn: func(int, context.Context) (*unit.Output, error) {
			return nil, errors.New("unit unavailable")
		}}
		iv := newInvoker(u, Config{MaxAttempts: maxAttempts, PerAttemptTimeout: time.Second})
		_, err := iv.Invoke(context.Background(), "survey", unit.Input{})
		require.Error(t, err)
		return err.Error()
	}

	one := makeErr(1)
	five := makeErr(5)
	assert.Equal(t, one, five, "message must not grow with the retry budget")
	assert.Equal(t, 1, strings.Count(five, "failed:"), "no nested retry text")
}

func TestInvoke_TimeoutsAreTransientAndRetried(t *testing.T) {
	u := &scriptedUnit{name: "simulation", fn: func(_ int, ctx context.Context) (*unit.Output, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	iv := newInvoker(u, Config{MaxAttempts: 3, PerAttemptTimeout: 10 * time.Millisecond})

	_, err := iv.Invoke(context.Background(), "simulation", unit.Input{})
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Len(t, se.Attempts, 3, "each timed-out attempt is recorded and retried")
	assert.Contains(t, se.Root, "context deadline exceeded")
	assert.Equal(t, 1, strings.Count(err.Error(), "context deadline exceeded"),
		"exactly one root cause in the message, not one per attempt")
}

func TestInvoke_UnitRejectionSkipsRemainingAttempts(t *testing.T) {
	u := &scriptedUnit{name: "survey", fn: func(int, context.Context) (*unit.Output, error) {
		return &unit.Output{Success: false, ErrorMessage: "survey requires site coordinates (lat, lon)"}, nil
	}}
	iv := newInvoker(u, Config{MaxAttempts: 5, PerAttemptTimeout: time.Second})

	_, err := iv.Invoke(context.Background(), "survey", unit.Input{})
	require.Error(t, err)
	assert.Equal(t, 1, u.calls, "a unit-level rejection is not retried")

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "survey requires site coordinates (lat, lon)", se.Root)
}

func TestInvoke_RejectedTransportErrorIsPermanent(t *testing.T) {
	u := &scriptedUnit{name: "survey", fn: func(int, context.Context) (*unit.Output, error) {
		return nil, fmt.Errorf("unit survey: status 400: bad payload: %w", unit.ErrRejected)
	}}
	iv := newInvoker(u, Config{MaxAttempts: 5, PerAttemptTimeout: time.Second})

	_, err := iv.Invoke(context.Background(), "survey", unit.Input{})
	require.Error(t, err)
	assert.Equal(t, 1, u.calls)
}

func TestInvoke_CallerCancellationIsNotAStageError(t *testing.T) {
	u := &scriptedUnit{name: "survey", fn: func(int, context.Context) (*unit.Output, error) {
		return nil, errors.New("flaky")
	}}
	iv := New(unit.NewRegistry(u), Config{MaxAttempts: 5, PerAttemptTimeout: time.Second, BaseDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := iv.Invoke(ctx, "survey", unit.Input{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var se *StageError
	assert.False(t, errors.As(err, &se), "cancellation is the caller's doing, not a stage failure")
}

func TestInvoke_UnknownUnit(t *testing.T) {
	iv := New(unit.NewRegistry(), Config{})
	_, err := iv.Invoke(context.Background(), "ghost", unit.Input{})
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Root, "ghost")
	assert.Empty(t, se.Attempts)
}

func TestInvoke_LogsEachAttempt(t *testing.T) {
	u := &scriptedUnit{name: "survey", fn: func(int, context.Context) (*unit.Output, error) {
		return nil, errors.New("down")
	}}
	iv := newInvoker(u, Config{MaxAttempts: 2, PerAttemptTimeout: time.Second})

	var lines []string
	iv.SetLogf(func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	})

	_, _ = iv.Invoke(context.Background(), "survey", unit.Input{})
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "attempt 1/2")
	assert.Contains(t, lines[1], "attempt 2/2")
}

func TestMaxLatency(t *testing.T) {
	iv := New(unit.NewRegistry(), Config{MaxAttempts: 4, PerAttemptTimeout: 15 * time.Second})
	assert.Equal(t, time.Minute, iv.MaxLatency())
}

func TestPermanent_NilSafe(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	err := Permanent(errors.New("x"))
	var pe *PermanentError
	assert.True(t, errors.As(err, &pe))
}
