package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory Conn used to drive Client without a real socket.
type fakeConn struct {
	closed bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error)     { return 0, nil, nil }
func (f *fakeConn) WriteMessage(int, []byte) error        { return nil }
func (f *fakeConn) WriteJSON(interface{}) error            { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error        { return nil }
func (f *fakeConn) SetReadLimit(int64)                     {}
func (f *fakeConn) SetPongHandler(func(string) error)      {}
func (f *fakeConn) Close() error                           { f.closed = true; return nil }

func drainSend(t *testing.T, c *Client) []frame {
	t.Helper()
	var out []frame
	for {
		select {
		case raw := <-c.send:
			var f frame
			require.NoError(t, json.Unmarshal(raw, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func newTestClient() *Client {
	return newClient("conn-1", &fakeConn{}, "alice")
}

func TestSubscribeAndDeliverMatchingEvent(t *testing.T) {
	c := newTestClient()
	c.handleSubscribe(clientFrame{Action: "subscribe", Stream: "trades", Symbol: "BTCUSDT"})
	drainSend(t, c) // discard the "subscribed" ack

	c.deliver("trades", "BTCUSDT", "binance", "", frame{Type: "trades"})
	frames := drainSend(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, "trades", frames[0].Type)
}

func TestDeliverRejectsForeignVenueOnKlines(t *testing.T) {
	c := newTestClient()
	c.handleSubscribe(clientFrame{Action: "subscribe", Stream: "klines", Symbol: "BTCUSDT", Exchange: "binance", Interval: "1m"})
	drainSend(t, c)

	c.deliver("klines", "BTCUSDT", "okx", "1m", frame{Type: "klines"})
	assert.Empty(t, drainSend(t, c), "a subscription pinned to binance must not receive okx klines")

	c.deliver("klines", "BTCUSDT", "binance", "1m", frame{Type: "klines"})
	assert.Len(t, drainSend(t, c), 1)
}

func TestDeliverRejectsKlinesWithoutIntervalSubscribed(t *testing.T) {
	c := newTestClient()
	c.handleSubscribe(clientFrame{Action: "subscribe", Stream: "klines", Symbol: "BTCUSDT", Exchange: "binance"})
	drainSend(t, c)

	c.deliver("klines", "BTCUSDT", "binance", "1m", frame{Type: "klines"})
	assert.Empty(t, drainSend(t, c), "a klines subscription missing interval_label must not wildcard-match every interval")
}

func TestDeliverRejectsWrongSymbol(t *testing.T) {
	c := newTestClient()
	c.handleSubscribe(clientFrame{Action: "subscribe", Stream: "trades", Symbol: "BTCUSDT"})
	drainSend(t, c)

	c.deliver("trades", "ETHUSDT", "binance", "", frame{Type: "trades"})
	assert.Empty(t, drainSend(t, c))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	c := newTestClient()
	c.handleSubscribe(clientFrame{Action: "subscribe", Stream: "trades", Symbol: "BTCUSDT"})
	drainSend(t, c)

	c.handleUnsubscribe(clientFrame{Action: "unsubscribe", Stream: "trades", Symbol: "BTCUSDT"})
	drainSend(t, c)

	c.deliver("trades", "BTCUSDT", "binance", "", frame{Type: "trades"})
	assert.Empty(t, drainSend(t, c))
}

func TestEwmaFirstObservationSeedsValue(t *testing.T) {
	c := newTestClient()
	c.handleSubscribe(clientFrame{Action: "subscribe", Stream: "ewma", Symbol: "BTCUSDT", HalfLifeSecs: 30})
	drainSend(t, c)

	c.updateEwma("BTCUSDT", "binance", 100, 1000)
	frames := drainSend(t, c)
	require.Len(t, frames, 1)

	data, err := json.Marshal(frames[0].Data)
	require.NoError(t, err)
	var sample map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &sample))
	assert.Equal(t, 100.0, sample["value"])
}

func TestEwmaSmoothsTowardNewPrice(t *testing.T) {
	c := newTestClient()
	c.handleSubscribe(clientFrame{Action: "subscribe", Stream: "ewma", Symbol: "BTCUSDT", HalfLifeSecs: 10})
	drainSend(t, c)

	c.updateEwma("BTCUSDT", "binance", 100, 0)
	drainSend(t, c)
	c.updateEwma("BTCUSDT", "binance", 200, 10) // one half-life later
	frames := drainSend(t, c)
	require.Len(t, frames, 1)

	data, _ := json.Marshal(frames[0].Data)
	var sample map[string]interface{}
	json.Unmarshal(data, &sample)
	value := sample["value"].(float64)
	assert.InDelta(t, 150.0, value, 1.0, "after one half-life the EWMA should have closed half the gap to the new price")
}
