// internal/budget/budget_test.go
package budget

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CapsRequestedTimeout(t *testing.T) {
	b := New(10*time.Minute, 2*time.Second)

	assert.LessOrEqual(t, b.Remaining(), 2*time.Second)
	assert.Greater(t, b.Remaining(), time.Second)
}

func TestNew_NonPositiveRequestFallsBackToCap(t *testing.T) {
	b := New(0, 3*time.Second)
	assert.Greater(t, b.Remaining(), 2*time.Second)

	b = New(-1, 0)
	assert.LessOrEqual(t, b.Remaining(), HardCap)
	assert.Greater(t, b.Remaining(), HardCap-time.Second)
}

func TestClamp_NeverExceedsRemaining(t *testing.T) {
	b := New(time.Second, 0)

	assert.LessOrEqual(t, b.Clamp(30*time.Second), time.Second)
	assert.LessOrEqual(t, b.Clamp(0), time.Second)

	short := b.Clamp(10 * time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, short)
}

func TestRemaining_ClampedToZeroAfterDeadline(t *testing.T) {
	b := New(10*time.Millisecond, 0)
	time.Sleep(25 * time.Millisecond)

	assert.Equal(t, time.Duration(0), b.Remaining())
	assert.True(t, b.Exceeded())
	assert.Equal(t, time.Duration(0), b.Clamp(time.Second))
}

func TestContext_ExpiresAtDeadline(t *testing.T) {
	b := New(20*time.Millisecond, 0)
	ctx, cancel := b.Context(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, b.Deadline(), deadline, time.Millisecond)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context did not expire at the budget deadline")
	}
}
