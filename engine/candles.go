package engine

import (
	"context"
	"strconv"
	"sync"
	"time"

	"marketrouter/metrics"
	"marketrouter/model"
)

// candleKey identifies one active candle bucket.
type candleKey struct {
	symbol   string
	venue    string // "all" for the cross-venue aggregate
	interval int    // seconds
}

// candleBook owns candle accumulation under its own mutex, independent of
// the engine's application-state mutex, since candle updates never need to
// be atomic with order/balance mutations.
type candleBook struct {
	mu        sync.Mutex
	intervals []int
	active    map[candleKey]*model.Candle
	pub       Publisher
}

func newCandleBook(intervals []int, pub Publisher) *candleBook {
	return &candleBook{
		intervals: intervals,
		active:    make(map[candleKey]*model.Candle),
		pub:       pub,
	}
}

// update folds a trade print into every configured interval's bucket for
// (symbol, venue), opening a fresh candle when none is active or the
// current one has elapsed, then publishes the candle.
func (b *candleBook) update(symbol, venue string, price, qty, ts float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, interval := range b.intervals {
		key := candleKey{symbol: symbol, venue: venue, interval: interval}
		c, ok := b.active[key]
		start := intervalStart(ts, interval)

		if !ok || ts >= c.End {
			c = &model.Candle{
				Symbol: symbol, Venue: venue, Interval: interval,
				Start: start, End: start + float64(interval),
				Open: price, High: price, Low: price, Close: price, Volume: qty,
			}
			b.active[key] = c
		} else {
			if price > c.High {
				c.High = price
			}
			if price < c.Low {
				c.Low = price
			}
			c.Close = price
			c.Volume += qty
		}

		b.publishLocked(c)
	}
}

// tick rolls every active candle whose End has elapsed into a fresh,
// zero-volume candle seeded with the previous close, then republishes every
// active candle — including ones that did not roll — so subscribers always
// see a frame at least once a second.
func (b *candleBook) tick(now float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, c := range b.active {
		if now >= c.End {
			start := c.End
			b.active[key] = &model.Candle{
				Symbol: c.Symbol, Venue: c.Venue, Interval: c.Interval,
				Start: start, End: start + float64(key.interval),
				Open: c.Close, High: c.Close, Low: c.Close, Close: c.Close, Volume: 0,
			}
		}
	}
	for _, c := range b.active {
		b.publishLocked(c)
	}
}

func (b *candleBook) publishLocked(c *model.Candle) {
	cp := *c
	b.pub.PublishCandle(cp)
	metrics.CandlesPublishedTotal.WithLabelValues(strconv.Itoa(c.Interval)).Inc()
}

func intervalStart(ts float64, interval int) float64 {
	i := int64(ts)
	iv := int64(interval)
	return float64(i - i%iv)
}

// RunTickLoop republishes every active candle every second, rolling over
// any whose interval has elapsed, until ctx is cancelled.
func (e *Engine) RunTickLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.candles.tick(Now())
		}
	}
}
