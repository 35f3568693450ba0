package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"marketrouter/api"
	"marketrouter/auth"
	"marketrouter/bootstrap"
	"marketrouter/config"
	"marketrouter/engine"
	"marketrouter/feed"
	"marketrouter/hub"
	"marketrouter/logger"
	"marketrouter/metrics"
	"marketrouter/store"
)

const blacklistSweepInterval = 10 * time.Minute

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bctx := bootstrap.NewContext(nil)

	bootstrap.Register("config", bootstrap.PriorityInfrastructure, func(bc *bootstrap.Context) error {
		cfg, err := config.LoadConfig("config.json")
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if secret := os.Getenv("JWT_SECRET"); secret != "" {
			cfg.JWTSecret = secret
		}
		if cfg.JWTSecret == "" {
			return fmt.Errorf("jwt secret not configured (set JWT_SECRET or config.json jwt_secret)")
		}
		bc.Config = cfg
		return nil
	})

	bootstrap.Register("logging", bootstrap.PriorityInfrastructure, func(bc *bootstrap.Context) error {
		logger.Configure(bc.Config.Log)
		metrics.Init()
		return nil
	})

	bootstrap.Register("auth", bootstrap.PriorityInfrastructure, func(bc *bootstrap.Context) error {
		auth.SetJWTSecret(bc.Config.JWTSecret)
		return nil
	})

	bootstrap.Register("snapshot-store", bootstrap.PriorityDatabase, func(bc *bootstrap.Context) error {
		bc.Set("snapshots", store.NewSnapshotStore(bc.Config.StoragePath))
		return nil
	})

	bootstrap.Register("blacklist-store", bootstrap.PriorityDatabase, func(bc *bootstrap.Context) error {
		bl, err := store.NewBlacklistStore(bc.Config.BlacklistDBPath)
		if err != nil {
			return err
		}
		auth.SetDatabase(bl)
		auth.LoadBlacklistFromDB()
		auth.StartBlacklistCleaner(blacklistSweepInterval)
		bc.Set("blacklist", bl)
		return nil
	})

	bootstrap.Register("hub", bootstrap.PriorityCore, func(bc *bootstrap.Context) error {
		bc.Set("hub", hub.New())
		return nil
	})

	bootstrap.Register("engine", bootstrap.PriorityCore, func(bc *bootstrap.Context) error {
		h := bc.MustGet("hub").(*hub.Hub)
		snapshots := bc.MustGet("snapshots").(*store.SnapshotStore)
		e := engine.New(bc.Config.Symbols, bc.Config.Venues, bc.Config.CandleIntervals, h, snapshots)
		if err := e.LoadSnapshot(); err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		bc.Set("engine", e)
		return nil
	})

	bootstrap.Register("feed-ingestors", bootstrap.PriorityBusiness, func(bc *bootstrap.Context) error {
		e := bc.MustGet("engine").(*engine.Engine)
		events := make(chan feed.Event, 4096)

		for _, name := range bc.Config.Venues {
			v, ok := feed.Get(name)
			if !ok {
				logger.Log.Warnf("main: unknown venue %q in config, skipping", name)
				continue
			}
			logger.Log.Infof("main: starting feed ingestor %s", name)
			v.Run(ctx, bc.Config.Symbols, events)
		}

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-events:
					switch ev.Kind {
					case feed.KindBestTouch:
						e.OnBestTouch(ev.Venue, ev.Symbol, ev.BestBid, ev.HasBid, ev.BestAsk, ev.HasAsk, ev.Timestamp)
					case feed.KindTrade:
						e.OnTrade(ev.Venue, ev.Symbol, ev.Price, ev.Quantity, ev.Timestamp)
					}
				}
			}
		}()
		return nil
	})

	bootstrap.Register("candle-ticker", bootstrap.PriorityBackground, func(bc *bootstrap.Context) error {
		e := bc.MustGet("engine").(*engine.Engine)
		go e.RunTickLoop(ctx)
		return nil
	})

	bootstrap.Register("http-api", bootstrap.PriorityBusiness, func(bc *bootstrap.Context) error {
		e := bc.MustGet("engine").(*engine.Engine)
		h := bc.MustGet("hub").(*hub.Hub)
		srv := api.NewServer(e, h, bc.Config.Symbols, bc.Config.JWTExpiry())
		bc.Set("server", srv)

		go func() {
			if err := srv.Start(ctx, bc.Config.ListenAddr); err != nil {
				logger.Log.Errorf("main: http server: %v", err)
			}
		}()
		return nil
	})

	if err := bootstrap.Run(bctx); err != nil {
		logger.Log.Fatalf("main: bootstrap failed: %v", err)
	}

	logger.Log.Infof("main: marketrouter ready, listening on %s", bctx.Config.ListenAddr)

	<-ctx.Done()
	logger.Log.Infof("main: shutdown signal received, draining")

	time.Sleep(500 * time.Millisecond)
	logger.Log.Infof("main: shutdown complete")
}
