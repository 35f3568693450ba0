package engine

import (
	"marketrouter/model"
)

// PlaceOrder validates and reserves balance for a new limit order. A buy
// reserves price*quantity of the quote asset; a sell reserves quantity of
// the base asset. Rejected orders never enter the open index.
func (e *Engine) PlaceOrder(owner, tokenID, symbol string, side model.OrderSide, price, quantity float64) (*model.Order, error) {
	if !e.symbols[symbol] {
		return nil, reject("unknown symbol %q", symbol)
	}
	if price <= 0 || quantity <= 0 {
		return nil, reject("price and quantity must be positive")
	}

	base, quote := model.SplitSymbol(symbol)

	e.mu.Lock()

	if _, exists := e.orders[tokenID]; exists {
		e.mu.Unlock()
		return nil, reject("token_id %q already used", tokenID)
	}

	var reserveAsset string
	var reserveAmount float64
	switch side {
	case model.SideBuy:
		reserveAsset = quote
		reserveAmount = price * quantity
	case model.SideSell:
		reserveAsset = base
		reserveAmount = quantity
	default:
		e.mu.Unlock()
		return nil, reject("unknown side %q", side)
	}

	bal := e.balanceLocked(owner, reserveAsset)
	if bal.Available < reserveAmount {
		e.mu.Unlock()
		return nil, reject("insufficient %s balance", reserveAsset)
	}

	bal.Available -= reserveAmount
	e.balances[owner][reserveAsset] = bal

	order := &model.Order{
		TokenID:        tokenID,
		Owner:          owner,
		Symbol:         symbol,
		Side:           side,
		Price:          price,
		Quantity:       quantity,
		Status:         model.StatusOpen,
		ReservedAmount: reserveAmount,
		CreatedAt:      Now(),
	}
	e.orders[tokenID] = order
	e.openOrdersBySymbol[symbol] = append(e.openOrdersBySymbol[symbol], tokenID)

	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.save(snap)
	return order, nil
}

// GetOrder returns order by token id.
func (e *Engine) GetOrder(tokenID string) (*model.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[tokenID]
	if !ok {
		return nil, &NotFoundError{TokenID: tokenID}
	}
	cp := *order
	return &cp, nil
}

// CancelOrder cancels an open order owned by owner, returning its full
// reservation to available balance.
func (e *Engine) CancelOrder(owner, tokenID string) (*model.Order, error) {
	e.mu.Lock()

	order, ok := e.orders[tokenID]
	if !ok {
		e.mu.Unlock()
		return nil, &NotFoundError{TokenID: tokenID}
	}
	if order.Owner != owner {
		e.mu.Unlock()
		return nil, reject("order does not belong to this user")
	}
	if order.Status != model.StatusOpen {
		e.mu.Unlock()
		return nil, reject("order is not open")
	}

	base, quote := model.SplitSymbol(order.Symbol)
	reserveAsset := quote
	if order.Side == model.SideSell {
		reserveAsset = base
	}

	bal := e.balanceLocked(owner, reserveAsset)
	bal.Available += order.ReservedAmount
	e.balances[owner][reserveAsset] = bal

	order.Status = model.StatusCancelled
	e.removeOpenOrderLocked(order.Symbol, tokenID)
	snap := e.snapshotLocked()
	cp := *order

	e.mu.Unlock()
	e.save(snap)
	return &cp, nil
}

func (e *Engine) removeOpenOrderLocked(symbol, tokenID string) {
	ids := e.openOrdersBySymbol[symbol]
	for i, id := range ids {
		if id == tokenID {
			e.openOrdersBySymbol[symbol] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}
