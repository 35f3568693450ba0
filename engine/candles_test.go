package engine

import (
	"testing"
	"time"

	"github.com/agiledragon/gomonkey/v2"
	"github.com/stretchr/testify/assert"
)

func TestCandleRollsOverOnIdleTick(t *testing.T) {
	pub := &fakePublisher{}
	book := newCandleBook([]int{60}, pub)

	book.update("BTCUSDT", "all", 100, 1, 0)
	firstCandleCount := len(pub.candles)
	assert.Equal(t, 1, firstCandleCount)

	// No new trade arrives, but the tick loop must still republish the
	// still-open candle every second (heartbeat), then roll it once its
	// interval elapses.
	book.tick(30)
	assert.Len(t, pub.candles, firstCandleCount+1, "an idle candle still republishes on every tick")

	book.tick(61)
	rolled := pub.candles[len(pub.candles)-1]
	assert.Equal(t, 60.0, rolled.Start)
	assert.Equal(t, 100.0, rolled.Open)
	assert.Equal(t, 0.0, rolled.Volume, "a rolled candle with no trades starts at zero volume")
}

// TestDefaultNowUsesWallClock patches time.Now (the way the teacher's own
// time-dependent tests patch library calls with gomonkey) to verify the
// package's overridable Now() wrapper is wired to it, rather than to some
// other clock source.
func TestDefaultNowUsesWallClock(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	patches := gomonkey.ApplyFunc(time.Now, func() time.Time { return fixed })
	defer patches.Reset()

	got := Now()
	want := float64(fixed.UnixMilli()) / 1000
	assert.Equal(t, want, got)
}
