package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

// LogConfig controls the verbosity and optional remote forwarding of logs.
type LogConfig struct {
	Level    string          `json:"level"`    // debug, info, warn, error (default: info)
	Telegram *TelegramConfig `json:"telegram"` // optional Telegram alert sink
}

// TelegramConfig forwards log entries at or above MinLevel to a chat.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   int64  `json:"chat_id"`
	MinLevel string `json:"min_level"` // default: error
}

// Config is the top-level application configuration.
type Config struct {
	ListenAddr      string     `json:"listen_addr"`       // default ":8080"
	JWTSecret       string     `json:"jwt_secret"`
	JWTExpMinutes   int        `json:"jwt_exp_minutes"`   // default 1440
	Venues          []string   `json:"venues"`            // default {"binance", "okx"}
	Symbols         []string   `json:"symbols"`           // default five majors
	CandleIntervals []int      `json:"candle_intervals"`  // seconds, default {1,10,60,300}
	StoragePath     string     `json:"storage_path"`      // JSON snapshot path
	BlacklistDBPath string     `json:"blacklist_db_path"` // sqlite path for revoked tokens
	Log             *LogConfig `json:"log"`
}

const (
	defaultListenAddr      = ":8080"
	defaultJWTExpMinutes   = 1440
	defaultStoragePath     = "data/state.json"
	defaultBlacklistDBPath = "data/blacklist.db"
)

var (
	defaultVenues          = []string{"binance", "okx"}
	defaultSymbols         = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "ADAUSDT", "XRPUSDT"}
	defaultCandleIntervals = []int{1, 10, 60, 300}
)

// LoadConfig reads filename as JSON, falling back to an all-defaults Config
// when the file does not exist.
func LoadConfig(filename string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		log.Printf("config: %s not found, using defaults", filename)
	} else {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filename, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filename, err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.JWTExpMinutes == 0 {
		c.JWTExpMinutes = defaultJWTExpMinutes
	}
	if len(c.Venues) == 0 {
		c.Venues = defaultVenues
	}
	if len(c.Symbols) == 0 {
		c.Symbols = defaultSymbols
	}
	if len(c.CandleIntervals) == 0 {
		c.CandleIntervals = defaultCandleIntervals
	}
	if c.StoragePath == "" {
		c.StoragePath = defaultStoragePath
	}
	if c.BlacklistDBPath == "" {
		c.BlacklistDBPath = defaultBlacklistDBPath
	}
	if c.Log == nil {
		c.Log = &LogConfig{Level: "info"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Telegram != nil && c.Log.Telegram.MinLevel == "" {
		c.Log.Telegram.MinLevel = "error"
	}
}

// JWTExpiry returns the configured token lifetime as a duration.
func (c *Config) JWTExpiry() time.Duration {
	return time.Duration(c.JWTExpMinutes) * time.Minute
}
