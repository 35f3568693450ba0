package engine

import (
	"marketrouter/model"
	"marketrouter/store"
)

// OnBestTouch records venue's latest top-of-book for symbol, recomputes the
// synthetic cross-venue best, and lets the paper matcher cross any resting
// orders against it, all under the single application mutex, per the
// invariant that best-touch recomputation and order mutation are part of
// the same atomic sequence. The new best is published to subscribers only
// after the matcher pass and after the mutex is released.
func (e *Engine) OnBestTouch(venue, symbol string, bid float64, hasBid bool, ask float64, hasAsk bool, ts float64) {
	if !e.symbols[symbol] {
		return
	}

	e.mu.Lock()

	if e.quotes[symbol] == nil {
		e.quotes[symbol] = make(map[string]model.VenueQuote)
	}
	if _, seen := e.quotes[symbol][venue]; !seen {
		e.quoteOrder[symbol] = append(e.quoteOrder[symbol], venue)
	}
	e.quotes[symbol][venue] = model.VenueQuote{
		Venue: venue, Symbol: symbol,
		BestBid: bid, HasBid: hasBid,
		BestAsk: ask, HasAsk: hasAsk,
		Timestamp: ts,
	}

	best := e.recomputeBestLocked(symbol)
	dirty := e.executeOnBestTouchLocked(symbol, best)

	var snap *store.Snapshot
	if dirty {
		snap = e.snapshotLocked()
	}

	e.mu.Unlock()

	e.pub.PublishBestTouch(best)
	if dirty {
		e.save(snap)
	}
}

// recomputeBestLocked folds every venue's latest quote for symbol into the
// synthetic best. Caller must hold mu. Venues are visited in first-seen
// order (quoteOrder), not bare map iteration order, so that a tie between
// two venues' quotes always resolves to the same exchange rather than
// whichever one Go's randomized map iteration happens to visit first.
func (e *Engine) recomputeBestLocked(symbol string) model.SyntheticBest {
	best := model.SyntheticBest{Symbol: symbol}

	for _, venue := range e.quoteOrder[symbol] {
		q, ok := e.quotes[symbol][venue]
		if !ok {
			continue
		}
		if q.HasBid && (best.BestBid == nil || q.BestBid > *best.BestBid) {
			bid := q.BestBid
			best.BestBid = &bid
			best.BestBidExchange = venue
		}
		if q.HasAsk && (best.BestAsk == nil || q.BestAsk < *best.BestAsk) {
			ask := q.BestAsk
			best.BestAsk = &ask
			best.BestAskExchange = venue
		}
	}

	e.best[symbol] = best
	return best
}

// OnTrade publishes a trade print for (symbol, venue) and feeds both the
// venue-specific and aggregate candle keys. The engine keeps no record of
// the last trade per (symbol, venue).
func (e *Engine) OnTrade(venue, symbol string, price, qty, ts float64) {
	if !e.symbols[symbol] {
		return
	}

	e.pub.PublishTrade(model.Trade{Venue: venue, Symbol: symbol, Price: price, Quantity: qty, Timestamp: ts})

	e.candles.update(symbol, venue, price, qty, ts)
	e.candles.update(symbol, "all", price, qty, ts)
}
