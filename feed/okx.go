package feed

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"marketrouter/logger"
	"marketrouter/metrics"
)

const (
	okxWSURL           = "wss://ws.okx.com:8443/ws/v5/public"
	okxReconnectDelay  = 2 * time.Second
	okxPingInterval    = 20 * time.Second
	okxPingTimeout     = 20 * time.Second
)

// OkxVenue streams the tickers and trades channels from OKX's public
// websocket, mirroring the subscribe/ping-pong/reconnect shape of a
// hand-rolled gorilla/websocket client since OKX has no official Go SDK.
type OkxVenue struct{}

func (OkxVenue) Name() string { return "okx" }

type okxSubscribeArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type okxSubscribeMsg struct {
	Op   string             `json:"op"`
	Args []okxSubscribeArg `json:"args"`
}

type okxEnvelope struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []map[string]interface{} `json:"data"`
}

func (OkxVenue) Run(ctx context.Context, symbols []string, events chan<- Event) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := runOkxConnection(ctx, symbols, events); err != nil {
				logger.Market.Warn().Err(err).Str("venue", "okx").Msg("connection closed")
			}
			metrics.WSReconnectsTotal.WithLabelValues("okx").Inc()
			sleepOrDone(ctx, okxReconnectDelay)
		}
	}()
}

func runOkxConnection(ctx context.Context, symbols []string, events chan<- Event) error {
	conn, _, err := websocket.DefaultDialer.Dial(okxWSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	args := make([]okxSubscribeArg, 0, len(symbols)*2)
	for _, sym := range symbols {
		inst := okxSymbol(sym)
		args = append(args,
			okxSubscribeArg{Channel: "tickers", InstID: inst},
			okxSubscribeArg{Channel: "trades", InstID: inst},
		)
	}
	if err := conn.WriteJSON(okxSubscribeMsg{Op: "subscribe", Args: args}); err != nil {
		return err
	}

	instToSymbol := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		instToSymbol[okxSymbol(sym)] = sym
	}

	conn.SetReadDeadline(time.Now().Add(okxPingTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(okxPingTimeout))
		return nil
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(okxPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(okxPingTimeout))

		var env okxEnvelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Arg.Channel == "" {
			continue
		}

		symbol, ok := instToSymbol[env.Arg.InstID]
		if !ok {
			continue
		}

		switch env.Arg.Channel {
		case "tickers":
			handleOkxTicker(symbol, env.Data, events)
		case "trades":
			handleOkxTrade(symbol, env.Data, events)
		}
	}
}

func handleOkxTicker(symbol string, data []map[string]interface{}, events chan<- Event) {
	for _, d := range data {
		bid, bidErr := parseOkxFloat(d["bidPx"])
		ask, askErr := parseOkxFloat(d["askPx"])
		if bidErr != nil && askErr != nil {
			continue
		}
		ts := okxTimestamp(d["ts"])
		events <- Event{
			Kind:      KindBestTouch,
			Venue:     "okx",
			Symbol:    symbol,
			BestBid:   bid,
			HasBid:    bidErr == nil,
			BestAsk:   ask,
			HasAsk:    askErr == nil,
			Timestamp: ts,
		}
	}
}

func handleOkxTrade(symbol string, data []map[string]interface{}, events chan<- Event) {
	for _, d := range data {
		price, err := parseOkxFloat(d["px"])
		if err != nil {
			continue
		}
		qty, err := parseOkxFloat(d["sz"])
		if err != nil {
			continue
		}
		events <- Event{
			Kind:      KindTrade,
			Venue:     "okx",
			Symbol:    symbol,
			Price:     price,
			Quantity:  qty,
			Timestamp: okxTimestamp(d["ts"]),
		}
	}
}

func parseOkxFloat(v interface{}) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(s, 64)
}

func okxTimestamp(v interface{}) float64 {
	s, ok := v.(string)
	if !ok {
		return float64(time.Now().UnixMilli()) / 1000
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return float64(time.Now().UnixMilli()) / 1000
	}
	return float64(ms) / 1000
}

// okxSymbol rewrites an exchange-neutral ticker like BTCUSDT into OKX's
// dashed instrument id BTC-USDT.
func okxSymbol(symbol string) string {
	for _, suffix := range []string{"USDT", "USDC", "USD"} {
		if strings.HasSuffix(symbol, suffix) && len(symbol) > len(suffix) {
			return symbol[:len(symbol)-len(suffix)] + "-" + suffix
		}
	}
	return symbol
}

func init() {
	Register(OkxVenue{})
}
