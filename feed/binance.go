package feed

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"

	"marketrouter/logger"
	"marketrouter/metrics"
)

const binanceReconnectDelay = 2 * time.Second

// BinanceVenue streams book-ticker and aggregate-trade events from
// Binance's public spot websocket using the official SDK's streaming
// helpers; this ingestor only normalizes callbacks and owns the 2s
// reconnect policy the SDK itself does not provide.
type BinanceVenue struct{}

func (BinanceVenue) Name() string { return "binance" }

func (BinanceVenue) Run(ctx context.Context, symbols []string, events chan<- Event) {
	go runBinanceBookTicker(ctx, symbols, events)
	go runBinanceTrades(ctx, symbols, events)
}

func runBinanceBookTicker(ctx context.Context, symbols []string, events chan<- Event) {
	handler := func(e *binance.WsBookTickerEvent) {
		bid, bidErr := strconv.ParseFloat(e.BestBidPrice, 64)
		ask, askErr := strconv.ParseFloat(e.BestAskPrice, 64)
		if bidErr != nil && askErr != nil {
			return
		}
		events <- Event{
			Kind:      KindBestTouch,
			Venue:     "binance",
			Symbol:    strings.ToUpper(e.Symbol),
			BestBid:   bid,
			HasBid:    bidErr == nil,
			BestAsk:   ask,
			HasAsk:    askErr == nil,
			Timestamp: float64(time.Now().UnixMilli()) / 1000,
		}
	}

	errHandler := func(err error) {
		logger.Market.Warn().Err(err).Str("venue", "binance").Msg("book ticker stream error")
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		doneC, stopC, err := binance.WsCombinedBookTickerServe(symbols, handler, errHandler)
		if err != nil {
			logger.Market.Warn().Err(err).Str("venue", "binance").Msg("dial book ticker stream")
			metrics.WSReconnectsTotal.WithLabelValues("binance").Inc()
			sleepOrDone(ctx, binanceReconnectDelay)
			continue
		}

		select {
		case <-ctx.Done():
			close(stopC)
			return
		case <-doneC:
			metrics.WSReconnectsTotal.WithLabelValues("binance").Inc()
			sleepOrDone(ctx, binanceReconnectDelay)
		}
	}
}

func runBinanceTrades(ctx context.Context, symbols []string, events chan<- Event) {
	handler := func(e *binance.WsAggTradeEvent) {
		price, err := strconv.ParseFloat(e.Price, 64)
		if err != nil {
			return
		}
		qty, err := strconv.ParseFloat(e.Quantity, 64)
		if err != nil {
			return
		}
		events <- Event{
			Kind:      KindTrade,
			Venue:     "binance",
			Symbol:    strings.ToUpper(e.Symbol),
			Price:     price,
			Quantity:  qty,
			Timestamp: float64(e.TradeTime) / 1000,
		}
	}

	errHandler := func(err error) {
		logger.Market.Warn().Err(err).Str("venue", "binance").Msg("trade stream error")
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		doneC, stopC, err := binance.WsCombinedAggTradeServe(symbols, handler, errHandler)
		if err != nil {
			logger.Market.Warn().Err(err).Str("venue", "binance").Msg("dial trade stream")
			metrics.WSReconnectsTotal.WithLabelValues("binance").Inc()
			sleepOrDone(ctx, binanceReconnectDelay)
			continue
		}

		select {
		case <-ctx.Done():
			close(stopC)
			return
		case <-doneC:
			metrics.WSReconnectsTotal.WithLabelValues("binance").Inc()
			sleepOrDone(ctx, binanceReconnectDelay)
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func init() {
	Register(BinanceVenue{})
}
