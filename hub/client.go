package hub

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketrouter/logger"
	"marketrouter/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Conn is the subset of *websocket.Conn the hub needs, so client logic can
// be exercised without a real socket.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	WriteJSON(interface{}) error
	SetReadDeadline(time.Time) error
	SetReadLimit(int64)
	SetPongHandler(func(string) error)
	Close() error
}

// subscription is one active stream filter owned by a connection.
type subscription struct {
	stream        string
	symbol        string
	venueFilter   string // "all" when absent
	intervalLabel string
	halfLife      float64
}

type ewmaKey struct {
	symbol, venue string
	halfLife      float64
}

type ewmaState struct {
	value   float64
	lastTS  float64
	primed  bool
}

// Client wraps one authenticated websocket connection.
type Client struct {
	id       string
	conn     Conn
	username string
	send     chan []byte

	subMu sync.Mutex
	subs  []subscription
	ewma  map[ewmaKey]*ewmaState
}

func newClient(id string, conn Conn, username string) *Client {
	return &Client{
		id:       id,
		conn:     conn,
		username: username,
		send:     make(chan []byte, 64),
		ewma:     make(map[ewmaKey]*ewmaState),
	}
}

type clientFrame struct {
	Action        string  `json:"action"`
	Stream        string  `json:"stream"`
	Symbol        string  `json:"symbol"`
	Exchange      string  `json:"exchange"`
	Interval      string  `json:"interval"`
	HalfLifeSecs  float64 `json:"half_life"`
}

// ReadPump consumes client frames (subscribe/unsubscribe) until the
// connection closes. It must run in its own goroutine.
func (c *Client) ReadPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var in clientFrame
		if err := json.Unmarshal(raw, &in); err != nil {
			c.sendJSON(frame{Type: "error", Data: map[string]string{"message": "malformed frame"}})
			continue
		}

		switch in.Action {
		case "subscribe":
			c.handleSubscribe(in)
		case "unsubscribe":
			c.handleUnsubscribe(in)
		default:
			c.sendJSON(frame{Type: "error", Data: map[string]string{"message": "unknown action"}})
		}
	}
}

func (c *Client) handleSubscribe(in clientFrame) {
	venueFilter := in.Exchange
	if venueFilter == "" {
		venueFilter = "all"
	}

	c.subMu.Lock()
	c.subs = append(c.subs, subscription{
		stream:        in.Stream,
		symbol:        in.Symbol,
		venueFilter:   venueFilter,
		intervalLabel: in.Interval,
		halfLife:      in.HalfLifeSecs,
	})
	c.subMu.Unlock()

	c.sendJSON(frame{Type: "subscribed", Data: map[string]string{"stream": in.Stream, "symbol": in.Symbol}})
}

func (c *Client) handleUnsubscribe(in clientFrame) {
	c.subMu.Lock()
	kept := c.subs[:0]
	for _, s := range c.subs {
		if s.stream == in.Stream && s.symbol == in.Symbol {
			continue
		}
		kept = append(kept, s)
	}
	c.subs = kept
	c.subMu.Unlock()

	c.sendJSON(frame{Type: "unsubscribed", Data: map[string]string{"stream": in.Stream, "symbol": in.Symbol}})
}

// WritePump drains the send channel to the socket with a periodic
// keepalive ping, until the channel is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if wd, canSet := c.conn.(interface{ SetWriteDeadline(time.Time) error }); canSet {
				wd.SetWriteDeadline(time.Now().Add(writeWait))
			}
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendJSON(f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		logger.Log.Warnf("hub: send buffer full for connection %s, dropping", c.id)
	}
}

// deliver filters an outbound event against every subscription on c and
// sends it once per matching subscription's stream/symbol/venue/interval.
func (c *Client) deliver(stream, symbol, venue, intervalLabel string, f frame) {
	c.subMu.Lock()
	matches := 0
	for _, s := range c.subs {
		if matchesSubscription(s, stream, symbol, venue, intervalLabel) {
			matches++
		}
	}
	c.subMu.Unlock()

	for i := 0; i < matches; i++ {
		c.sendJSON(f)
	}
}

func matchesSubscription(s subscription, stream, symbol, venue, intervalLabel string) bool {
	if s.stream != stream {
		return false
	}
	if s.symbol != symbol {
		return false
	}
	if venue != "" && s.venueFilter != "all" && s.venueFilter != venue {
		return false
	}
	if intervalLabel != "" && s.intervalLabel != intervalLabel {
		return false
	}
	return true
}

// updateEwma advances every EWMA subscription on c that tracks (symbol,
// venue) and emits the new value.
func (c *Client) updateEwma(symbol, venue string, price, ts float64) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, s := range c.subs {
		if s.stream != "ewma" || s.symbol != symbol || s.halfLife <= 0 {
			continue
		}
		if s.venueFilter != "all" && s.venueFilter != venue {
			continue
		}

		key := ewmaKey{symbol: symbol, venue: s.venueFilter, halfLife: s.halfLife}
		st, ok := c.ewma[key]
		if !ok {
			st = &ewmaState{}
			c.ewma[key] = st
		}

		if !st.primed {
			st.value = price
			st.primed = true
		} else {
			dt := ts - st.lastTS
			if dt < 0 {
				dt = 0
			}
			alpha := 1 - math.Exp(-math.Ln2*dt/s.halfLife)
			st.value = (1-alpha)*st.value + alpha*price
		}
		st.lastTS = ts

		sample := model.EwmaSample{Symbol: symbol, Venue: s.venueFilter, HalfLife: s.halfLife, Value: st.value, Timestamp: ts}
		c.sendJSON(frame{Type: "ewma", Data: sample})
	}
}
