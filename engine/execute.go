package engine

import (
	"marketrouter/metrics"
	"marketrouter/model"
)

// executeOnBestTouchLocked crosses resting orders for symbol against best.
// Caller must hold mu. It snapshots the current open-order id list before
// iterating so that an order filled mid-pass (and thus removed from the
// index) does not perturb the iteration, then re-validates each order is
// still open before filling it — the same defensive shape the spec
// requires even though, here, the whole pass runs under one uninterrupted
// lock acquisition rather than across suspension points. Returns true if
// any order filled (and therefore state needs persisting).
func (e *Engine) executeOnBestTouchLocked(symbol string, best model.SyntheticBest) bool {
	ids := make([]string, len(e.openOrdersBySymbol[symbol]))
	copy(ids, e.openOrdersBySymbol[symbol])

	dirty := false
	for _, tokenID := range ids {
		order, ok := e.orders[tokenID]
		if !ok || order.Status != model.StatusOpen {
			continue
		}

		var fillPrice float64
		switch order.Side {
		case model.SideBuy:
			if best.BestAsk == nil || *best.BestAsk > order.Price {
				continue
			}
			fillPrice = *best.BestAsk
		case model.SideSell:
			if best.BestBid == nil || *best.BestBid < order.Price {
				continue
			}
			fillPrice = *best.BestBid
		default:
			continue
		}

		e.fillOrderLocked(order, fillPrice)
		dirty = true
	}
	return dirty
}

// fillOrderLocked applies the balance effects of a fill and marks the order
// filled. Caller must hold mu.
func (e *Engine) fillOrderLocked(order *model.Order, fillPrice float64) {
	base, quote := model.SplitSymbol(order.Symbol)

	switch order.Side {
	case model.SideBuy:
		cost := fillPrice * order.Quantity
		quoteBal := e.balanceLocked(order.Owner, quote)
		quoteBal.Total -= cost
		if excess := order.ReservedAmount - cost; excess > 0 {
			quoteBal.Available += excess
		}
		e.balances[order.Owner][quote] = quoteBal

		baseBal := e.balanceLocked(order.Owner, base)
		baseBal.Total += order.Quantity
		baseBal.Available += order.Quantity
		e.balances[order.Owner][base] = baseBal

	case model.SideSell:
		proceeds := fillPrice * order.Quantity
		baseBal := e.balanceLocked(order.Owner, base)
		baseBal.Total -= order.Quantity
		e.balances[order.Owner][base] = baseBal

		quoteBal := e.balanceLocked(order.Owner, quote)
		quoteBal.Total += proceeds
		quoteBal.Available += proceeds
		e.balances[order.Owner][quote] = quoteBal
	}

	order.Status = model.StatusFilled
	filled := fillPrice
	order.FilledPrice = &filled
	e.removeOpenOrderLocked(order.Symbol, order.TokenID)
	metrics.OrdersFilledTotal.WithLabelValues(order.Symbol, string(order.Side)).Inc()
}
