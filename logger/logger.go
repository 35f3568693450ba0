// Package logger wires the two logging libraries the rest of the codebase
// depends on: logrus for lifecycle/bootstrap events (matching bootstrap's
// own Warnf call sites) and zerolog for high-frequency structured events
// coming off the market data feeds.
package logger

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"

	"marketrouter/config"
)

// Log is the package-level logrus logger used for lifecycle and
// bootstrap-sequencing messages.
var Log = logrus.New()

// Market is the package-level zerolog logger used for structured logging
// in the feed ingestors.
var Market zerolog.Logger

func init() {
	Log.SetOutput(os.Stdout)
	Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	Market = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Configure applies the configured level to both loggers and installs the
// Telegram hook on Log when enabled.
func Configure(cfg *config.LogConfig) {
	if cfg == nil {
		return
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)

	zlevel, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		zlevel = zerolog.InfoLevel
	}
	Market = Market.Level(zlevel)

	if cfg.Telegram != nil && cfg.Telegram.Enabled {
		hook, err := newTelegramHook(cfg.Telegram)
		if err != nil {
			Log.Warnf("logger: telegram hook disabled: %v", err)
			return
		}
		Log.AddHook(hook)
	}
}
