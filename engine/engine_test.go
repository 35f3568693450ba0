package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketrouter/model"
	"marketrouter/store"
)

type fakePublisher struct {
	bestTouches []model.SyntheticBest
	trades      []model.Trade
	candles     []model.Candle
}

func (f *fakePublisher) PublishBestTouch(b model.SyntheticBest) { f.bestTouches = append(f.bestTouches, b) }
func (f *fakePublisher) PublishTrade(t model.Trade)             { f.trades = append(f.trades, t) }
func (f *fakePublisher) PublishCandle(c model.Candle)           { f.candles = append(f.candles, c) }

func newTestEngine(t *testing.T) (*Engine, *fakePublisher) {
	t.Helper()
	dir := t.TempDir()
	pub := &fakePublisher{}
	e := New([]string{"BTCUSDT"}, []string{"binance", "okx"}, []int{1, 60}, pub, store.NewSnapshotStore(filepath.Join(dir, "state.json")))
	require.NoError(t, e.LoadSnapshot())
	return e, pub
}

func TestDepositAndBalanceInvariant(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Deposit("alice", "USDT", 1000)

	bal := e.Balances("alice")["USDT"]
	assert.Equal(t, 1000.0, bal.Total)
	assert.Equal(t, 1000.0, bal.Available)
	assert.LessOrEqual(t, bal.Available, bal.Total)
}

func TestPlaceOrderReservesBalance(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Deposit("alice", "USDT", 1000)

	order, err := e.PlaceOrder("alice", "tok-1", "BTCUSDT", model.SideBuy, 100, 2)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpen, order.Status)

	bal := e.Balances("alice")["USDT"]
	assert.Equal(t, 1000.0, bal.Total)
	assert.Equal(t, 800.0, bal.Available)
}

func TestPlaceOrderRejectsInsufficientBalance(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Deposit("alice", "USDT", 50)

	_, err := e.PlaceOrder("alice", "tok-1", "BTCUSDT", model.SideBuy, 100, 1)
	assert.Error(t, err)
	var rej *RejectionError
	assert.ErrorAs(t, err, &rej)
}

func TestPlaceOrderRejectsDuplicateTokenID(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Deposit("alice", "USDT", 1000)

	_, err := e.PlaceOrder("alice", "dup", "BTCUSDT", model.SideBuy, 100, 1)
	require.NoError(t, err)

	_, err = e.PlaceOrder("alice", "dup", "BTCUSDT", model.SideBuy, 100, 1)
	assert.Error(t, err)
}

func TestCancelOrderRestoresAvailable(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Deposit("alice", "USDT", 1000)

	_, err := e.PlaceOrder("alice", "tok-1", "BTCUSDT", model.SideBuy, 100, 2)
	require.NoError(t, err)

	order, err := e.CancelOrder("alice", "tok-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, order.Status)

	bal := e.Balances("alice")["USDT"]
	assert.Equal(t, 1000.0, bal.Available)
	assert.Equal(t, bal.Total, bal.Available)
}

func TestCancelOrderRejectsNonOwner(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Deposit("alice", "USDT", 1000)
	_, err := e.PlaceOrder("alice", "tok-1", "BTCUSDT", model.SideBuy, 100, 1)
	require.NoError(t, err)

	_, err = e.CancelOrder("bob", "tok-1")
	assert.Error(t, err)
}

func TestBuyOrderFillsOnBestTouch(t *testing.T) {
	e, pub := newTestEngine(t)
	e.Deposit("alice", "USDT", 1000)

	_, err := e.PlaceOrder("alice", "tok-1", "BTCUSDT", model.SideBuy, 100, 2)
	require.NoError(t, err)

	e.OnBestTouch("binance", "BTCUSDT", 98, true, 99, true, 1.0)

	order, err := e.GetOrder("tok-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFilled, order.Status)
	require.NotNil(t, order.FilledPrice)
	assert.Equal(t, 99.0, *order.FilledPrice)

	usdt := e.Balances("alice")["USDT"]
	btc := e.Balances("alice")["BTC"]
	assert.Equal(t, 1000.0-99.0*2, usdt.Total)
	assert.Equal(t, 2.0, btc.Total)
	assert.Equal(t, 2.0, btc.Available)
	assert.NotEmpty(t, pub.bestTouches)
}

func TestSellOrderFillsOnBestTouch(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Deposit("alice", "BTC", 5)

	_, err := e.PlaceOrder("alice", "tok-1", "BTCUSDT", model.SideSell, 100, 2)
	require.NoError(t, err)

	e.OnBestTouch("binance", "BTCUSDT", 101, true, 102, true, 1.0)

	order, err := e.GetOrder("tok-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFilled, order.Status)

	usdt := e.Balances("alice")["USDT"]
	btc := e.Balances("alice")["BTC"]
	assert.Equal(t, 101.0*2, usdt.Total)
	assert.Equal(t, 3.0, btc.Total)
}

func TestSyntheticBestAcrossVenues(t *testing.T) {
	e, pub := newTestEngine(t)

	e.OnBestTouch("binance", "BTCUSDT", 100, true, 101, true, 1.0)
	e.OnBestTouch("okx", "BTCUSDT", 102, true, 103, true, 1.0)

	last := pub.bestTouches[len(pub.bestTouches)-1]
	require.NotNil(t, last.BestBid)
	require.NotNil(t, last.BestAsk)
	assert.Equal(t, 102.0, *last.BestBid)
	assert.Equal(t, "okx", last.BestBidExchange)
	assert.Equal(t, 101.0, *last.BestAsk)
	assert.Equal(t, "binance", last.BestAskExchange)
}

func TestSyntheticBestTiesBreakByFirstSeenVenue(t *testing.T) {
	e, pub := newTestEngine(t)

	// Repeating the same tied quotes must always resolve the tie to the
	// same venue (the one first seen for this symbol), not whichever one
	// a bare map range happens to visit first.
	for i := 0; i < 5; i++ {
		e.OnBestTouch("okx", "BTCUSDT", 100, true, 101, true, float64(i))
		e.OnBestTouch("binance", "BTCUSDT", 100, true, 101, true, float64(i))

		last := pub.bestTouches[len(pub.bestTouches)-1]
		assert.Equal(t, "okx", last.BestBidExchange, "tie must resolve to the first-seen venue on every call")
		assert.Equal(t, "okx", last.BestAskExchange)
	}
}

func TestCandleInvariantsOnTrade(t *testing.T) {
	e, pub := newTestEngine(t)
	e.OnTrade("binance", "BTCUSDT", 100, 1, 1000.5)
	e.OnTrade("binance", "BTCUSDT", 105, 1, 1000.6)
	e.OnTrade("binance", "BTCUSDT", 95, 1, 1000.7)

	require.NotEmpty(t, pub.candles)
	for _, c := range pub.candles {
		assert.LessOrEqual(t, c.Low, c.Open)
		assert.LessOrEqual(t, c.Low, c.Close)
		assert.GreaterOrEqual(t, c.High, c.Open)
		assert.GreaterOrEqual(t, c.High, c.Close)
		assert.GreaterOrEqual(t, c.Volume, 0.0)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	pub := &fakePublisher{}

	e := New([]string{"BTCUSDT"}, []string{"binance"}, []int{60}, pub, store.NewSnapshotStore(path))
	require.NoError(t, e.LoadSnapshot())
	e.Deposit("alice", "USDT", 500)
	_, err := e.PlaceOrder("alice", "tok-1", "BTCUSDT", model.SideBuy, 10, 5)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	e2 := New([]string{"BTCUSDT"}, []string{"binance"}, []int{60}, pub, store.NewSnapshotStore(path))
	require.NoError(t, e2.LoadSnapshot())

	order, err := e2.GetOrder("tok-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpen, order.Status)
	assert.Equal(t, 500.0-50.0, e2.Balances("alice")["USDT"].Available)
}

func TestExecuteOnBestTouchIdempotentAfterFill(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Deposit("alice", "USDT", 1000)
	_, err := e.PlaceOrder("alice", "tok-1", "BTCUSDT", model.SideBuy, 100, 1)
	require.NoError(t, err)

	e.OnBestTouch("binance", "BTCUSDT", 98, true, 99, true, 1.0)
	firstFill := e.Balances("alice")["BTC"].Total

	e.OnBestTouch("binance", "BTCUSDT", 98, true, 99, true, 2.0)
	secondFill := e.Balances("alice")["BTC"].Total

	assert.Equal(t, firstFill, secondFill, "re-issuing the same best touch after a fill must be a no-op")
}
