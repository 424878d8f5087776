package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottleGate_Window(t *testing.T) {
	g := NewThrottleGate()

	assert.False(t, g.IsThrottled("r1", 30, testEpoch), "no prior trigger")

	g.MarkTriggered("r1", testEpoch)
	assert.True(t, g.IsThrottled("r1", 30, testEpoch.Add(29*time.Minute+59*time.Second)))
	assert.False(t, g.IsThrottled("r1", 30, testEpoch.Add(30*time.Minute)), "exactly T minutes later is allowed")

	assert.False(t, g.IsThrottled("r2", 30, testEpoch), "other rules are independent")
}

func TestThrottleGate_ZeroDisables(t *testing.T) {
	g := NewThrottleGate()
	g.MarkTriggered("r1", testEpoch)
	assert.False(t, g.IsThrottled("r1", 0, testEpoch))
}

// The check and the mark share the instant they are given, whatever the wall
// clock says.
func TestThrottleGate_UsesGivenInstant(t *testing.T) {
	g := NewThrottleGate()
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	g.MarkTriggered("r1", past)
	assert.True(t, g.IsThrottled("r1", 10, past.Add(9*time.Minute)))
	assert.False(t, g.IsThrottled("r1", 10, past.Add(10*time.Minute)))
}

func TestThrottleGate_CheckHasNoSideEffects(t *testing.T) {
	g := NewThrottleGate()
	g.IsThrottled("r1", 10, testEpoch)
	_, ok := g.LastTriggered("r1")
	assert.False(t, ok)

	g.MarkTriggered("r1", testEpoch)
	g.Forget("r1")
	_, ok = g.LastTriggered("r1")
	assert.False(t, ok)
}
