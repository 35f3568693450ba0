// Package engine is the coordinator that owns all mutable application
// state: cross-venue best-touch, open orders, and balances. The aggregator
// and the paper matcher are not separate lock domains — the specification
// requires best-touch recomputation and order/balance mutation to share one
// application-state mutex, so both concerns live here, guarded by one
// sync.Mutex. Candle accumulation is the one piece of state that gets its
// own, separate mutex (see candles.go).
package engine

import (
	"fmt"
	"sync"
	"time"

	"marketrouter/logger"
	"marketrouter/model"
	"marketrouter/store"
)

// Publisher receives every event the engine produces, for fan-out to
// websocket subscribers. Implementations must not block.
type Publisher interface {
	PublishBestTouch(best model.SyntheticBest)
	PublishTrade(trade model.Trade)
	PublishCandle(candle model.Candle)
}

// Engine is the single coordinator for best-touch, orders, and balances.
type Engine struct {
	mu sync.Mutex

	symbols map[string]bool
	venues  map[string]bool

	quotes     map[string]map[string]model.VenueQuote // symbol -> venue -> quote
	quoteOrder map[string][]string                     // symbol -> venues in first-seen order, for deterministic tie-breaking
	best       map[string]model.SyntheticBest          // symbol -> synthetic best

	users              map[string]model.User
	balances           map[string]map[string]model.Balance // owner -> asset -> balance
	orders             map[string]*model.Order             // token_id -> order
	openOrdersBySymbol map[string][]string                  // symbol -> token_ids, insertion order

	candles *candleBook

	pub       Publisher
	snapshots *store.SnapshotStore
}

// New constructs an Engine for the given symbol/venue universe and candle
// intervals (in seconds), publishing events to pub and persisting through
// snapshots.
func New(symbols, venues []string, intervals []int, pub Publisher, snapshots *store.SnapshotStore) *Engine {
	e := &Engine{
		symbols:            toSet(symbols),
		venues:             toSet(venues),
		quotes:             make(map[string]map[string]model.VenueQuote),
		quoteOrder:         make(map[string][]string),
		best:               make(map[string]model.SyntheticBest),
		users:              make(map[string]model.User),
		balances:           make(map[string]map[string]model.Balance),
		orders:             make(map[string]*model.Order),
		openOrdersBySymbol: make(map[string][]string),
		candles:            newCandleBook(intervals, pub),
		pub:                pub,
		snapshots:          snapshots,
	}
	return e
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

// LoadSnapshot restores users/balances/orders from disk at startup.
func (e *Engine) LoadSnapshot() error {
	snap, err := e.snapshots.Load()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.users = snap.Users
	e.balances = snap.Balances
	e.orders = snap.Orders
	e.openOrdersBySymbol = snap.OpenOrdersBySymbol
	logger.Log.Infof("engine: restored %d users, %d orders", len(e.users), len(e.orders))
	return nil
}

// snapshotLocked copies the current state for persistence. Must be called
// with mu held. The disk write itself (save) happens after mu is released,
// since a file write is a suspension point the application-state mutex
// must not be held across.
func (e *Engine) snapshotLocked() *store.Snapshot {
	users := make(map[string]model.User, len(e.users))
	for k, v := range e.users {
		users[k] = v
	}
	balances := make(map[string]map[string]model.Balance, len(e.balances))
	for owner, assets := range e.balances {
		cp := make(map[string]model.Balance, len(assets))
		for asset, bal := range assets {
			cp[asset] = bal
		}
		balances[owner] = cp
	}
	orders := make(map[string]*model.Order, len(e.orders))
	for id, o := range e.orders {
		cp := *o
		orders[id] = &cp
	}
	openOrders := make(map[string][]string, len(e.openOrdersBySymbol))
	for symbol, ids := range e.openOrdersBySymbol {
		cp := make([]string, len(ids))
		copy(cp, ids)
		openOrders[symbol] = cp
	}

	return &store.Snapshot{
		Users:              users,
		Balances:           balances,
		Orders:             orders,
		OpenOrdersBySymbol: openOrders,
	}
}

// save persists snap to disk. Must be called without mu held.
func (e *Engine) save(snap *store.Snapshot) {
	if err := e.snapshots.Save(snap); err != nil {
		logger.Log.Warnf("engine: save snapshot: %v", err)
	}
}

// RegisterUser creates a new account with no balances. Returns an error if
// the username is taken.
func (e *Engine) RegisterUser(username, passwordHash string) error {
	e.mu.Lock()

	if _, exists := e.users[username]; exists {
		e.mu.Unlock()
		return fmt.Errorf("username already registered")
	}
	e.users[username] = model.User{Username: username, PasswordHash: passwordHash}
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.save(snap)
	return nil
}

// Authenticate returns the stored User record (including its password
// hash) for username, or false if the user does not exist.
func (e *Engine) Authenticate(username string) (model.User, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	u, ok := e.users[username]
	return u, ok
}

// Deposit credits amount of asset to owner's total and available balance.
func (e *Engine) Deposit(owner, asset string, amount float64) {
	e.mu.Lock()

	bal := e.balanceLocked(owner, asset)
	bal.Total += amount
	bal.Available += amount
	e.balances[owner][asset] = bal
	snap := e.snapshotLocked()

	e.mu.Unlock()
	e.save(snap)
}

// Balances returns a snapshot of owner's balances.
func (e *Engine) Balances(owner string) map[string]model.Balance {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]model.Balance, len(e.balances[owner]))
	for asset, bal := range e.balances[owner] {
		out[asset] = bal
	}
	return out
}

// balanceLocked returns owner's balance for asset, creating a zero entry if
// absent. Caller must hold mu.
func (e *Engine) balanceLocked(owner, asset string) model.Balance {
	if e.balances[owner] == nil {
		e.balances[owner] = make(map[string]model.Balance)
	}
	return e.balances[owner][asset]
}

// Now is overridable in tests via gomonkey; kept as a thin wrapper so
// order timestamps can be patched deterministically.
var Now = func() float64 {
	return float64(time.Now().UnixMilli()) / 1000
}
