// Package hub fans normalized market events out to authenticated websocket
// subscribers, applying each connection's per-stream filters and
// maintaining per-subscription EWMA state.
package hub

import (
	"sync"

	"github.com/google/uuid"

	"marketrouter/logger"
	"marketrouter/model"
)

// Hub owns the live connection registry, guarded by registryMu.
// Per-connection subscription vectors and EWMA state are guarded by each
// Client's own subMu, since they are touched both by fan-out and by the
// connection's ReadPump.
type Hub struct {
	registryMu sync.Mutex
	clients    map[string]*Client
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Register adds conn to the registry under a fresh connection id and
// returns the Client wrapping it.
func (h *Hub) Register(conn Conn, username string) *Client {
	c := newClient(uuid.NewString(), conn, username)

	h.registryMu.Lock()
	h.clients[c.id] = c
	h.registryMu.Unlock()

	logger.Log.Infof("hub: connection %s authenticated as %s", c.id, username)
	return c
}

// Remove drops a connection from the registry.
func (h *Hub) Remove(c *Client) {
	h.registryMu.Lock()
	delete(h.clients, c.id)
	h.registryMu.Unlock()
}

// ConnectionCount returns the number of currently registered connections.
func (h *Hub) ConnectionCount() int {
	h.registryMu.Lock()
	defer h.registryMu.Unlock()
	return len(h.clients)
}

func (h *Hub) snapshotClients() []*Client {
	h.registryMu.Lock()
	defer h.registryMu.Unlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// PublishBestTouch implements engine.Publisher.
func (h *Hub) PublishBestTouch(best model.SyntheticBest) {
	frame := frame{Type: "best_touch", Data: best}
	for _, c := range h.snapshotClients() {
		c.deliver("best_touch", best.Symbol, "", "", frame)
	}
}

// PublishTrade implements engine.Publisher.
func (h *Hub) PublishTrade(trade model.Trade) {
	frame := frame{Type: "trades", Data: trade}
	for _, c := range h.snapshotClients() {
		c.deliver("trades", trade.Symbol, trade.Venue, "", frame)
		c.updateEwma(trade.Symbol, trade.Venue, trade.Price, trade.Timestamp)
	}
}

// PublishCandle implements engine.Publisher.
func (h *Hub) PublishCandle(candle model.Candle) {
	label := model.IntervalLabel(candle.Interval)
	frame := frame{Type: "klines", Data: candle}
	for _, c := range h.snapshotClients() {
		c.deliver("klines", candle.Symbol, candle.Venue, label, frame)
	}
}

type frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
