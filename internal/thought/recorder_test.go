package thought

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRecorder_AppendAssignsGaplessSequence(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		seq, err := r.Append(ctx, "s1", Step{Type: TypeStage, Title: fmt.Sprintf("step %d", i)})
		require.NoError(t, err)
		assert.Equal(t, i, seq)
	}

	steps, err := r.Read(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, steps, 5)
	for i, s := range steps {
		assert.Equal(t, i+1, s.Seq)
		assert.Equal(t, StatusComplete, s.Status)
		assert.False(t, s.Timestamp.IsZero())
	}
}

func TestMemoryRecorder_SequencesAreScopedPerSession(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	seqA, err := r.Append(ctx, "a", Step{Title: "first"})
	require.NoError(t, err)
	seqB, err := r.Append(ctx, "b", Step{Title: "first"})
	require.NoError(t, err)

	assert.Equal(t, 1, seqA)
	assert.Equal(t, 1, seqB)
}

func TestMemoryRecorder_ReadIsMonotonic(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	_, err := r.Append(ctx, "s1", Step{Title: "one"})
	require.NoError(t, err)

	first, err := r.Read(ctx, "s1")
	require.NoError(t, err)

	_, err = r.Append(ctx, "s1", Step{Title: "two"})
	require.NoError(t, err)

	second, err := r.Read(ctx, "s1")
	require.NoError(t, err)

	// A later read never returns fewer steps than an earlier one.
	require.GreaterOrEqual(t, len(second), len(first))
	assert.Equal(t, first[0], second[0])
}

func TestMemoryRecorder_ReadAfter(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := r.Append(ctx, "s1", Step{Title: fmt.Sprintf("step %d", i+1)})
		require.NoError(t, err)
	}

	steps, err := r.ReadAfter(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 3, steps[0].Seq)
	assert.Equal(t, 4, steps[1].Seq)

	none, err := r.ReadAfter(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryRecorder_FinishRewritesInPlace(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	seq, err := r.Append(ctx, "s1", Step{
		Type:    TypeStage,
		Title:   "survey running",
		Summary: "started",
		Status:  StatusActive,
	})
	require.NoError(t, err)

	err = r.Finish(ctx, "s1", seq, Finish{
		Status:     StatusComplete,
		Summary:    "survey finished",
		DurationMs: 120,
	})
	require.NoError(t, err)

	steps, err := r.Read(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, steps, 1, "finishing must not consume a new sequence number")
	assert.Equal(t, seq, steps[0].Seq)
	assert.Equal(t, StatusComplete, steps[0].Status)
	assert.Equal(t, "survey finished", steps[0].Summary)
	assert.Equal(t, int64(120), steps[0].DurationMs)
}

func TestMemoryRecorder_FinishRejectsCompletedStep(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	seq, err := r.Append(ctx, "s1", Step{Title: "done already"})
	require.NoError(t, err)

	err = r.Finish(ctx, "s1", seq, Finish{Status: StatusFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already")
}

func TestMemoryRecorder_FinishUnknownStep(t *testing.T) {
	r := NewMemoryRecorder()
	err := r.Finish(context.Background(), "s1", 3, Finish{})
	require.Error(t, err)
}

func TestMemoryRecorder_ConcurrentAppendsNoDuplicateSequences(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := r.Append(ctx, "shared", Step{
					Type:  TypeStage,
					Title: fmt.Sprintf("writer %d step %d", w, i),
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	steps, err := r.Read(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, steps, writers*perWriter)

	seen := make(map[int]bool, len(steps))
	for i, s := range steps {
		assert.False(t, seen[s.Seq], "duplicate sequence %d", s.Seq)
		seen[s.Seq] = true
		assert.Equal(t, i+1, s.Seq, "sequence numbers must be gapless")
	}
}

func TestMemoryRecorder_ReadReturnsCopy(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	_, err := r.Append(ctx, "s1", Step{Title: "original"})
	require.NoError(t, err)

	steps, err := r.Read(ctx, "s1")
	require.NoError(t, err)
	steps[0].Title = "mutated"

	again, err := r.Read(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Title)
}
