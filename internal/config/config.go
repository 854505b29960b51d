// Package config loads engine startup settings from environment
// variables with defaults. It is a plain struct, no framework: a
// single-binary service has no need for a flags/env library.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds every path and external-service setting the engine
// needs at startup.
type Config struct {
	// CSV persistence.
	BidsFile     string
	AsksFile     string
	TradeLogFile string

	// Event logger.
	EventLogFile string
	EchoToStderr bool

	// Command write-ahead log.
	WALDir         string
	WALSegmentSize int64

	// Trade outbox.
	OutboxDir     string
	KafkaBrokers  []string
	TradesTopic   string
	OutboxEnabled bool

	// Top-of-book feed.
	BookTopTopic string
	FeedEnabled  bool
}

// Load reads configuration from the environment, applying defaults
// for anything unset.
func Load() Config {
	cfg := Config{
		BidsFile:       getenv("LIMITBOOK_BIDS_FILE", "data/active_bids.csv"),
		AsksFile:       getenv("LIMITBOOK_ASKS_FILE", "data/active_asks.csv"),
		TradeLogFile:   getenv("LIMITBOOK_TRADE_LOG", "data/trades.csv"),
		EventLogFile:   getenv("LIMITBOOK_EVENT_LOG", "data/events.log"),
		EchoToStderr:   getbool("LIMITBOOK_ECHO_STDERR", true),
		WALDir:         getenv("LIMITBOOK_WAL_DIR", "data/wal"),
		WALSegmentSize: getint64("LIMITBOOK_WAL_SEGMENT_SIZE", 2*1024*1024),
		OutboxDir:      getenv("LIMITBOOK_OUTBOX_DIR", "data/outbox"),
		KafkaBrokers:   getlist("LIMITBOOK_KAFKA_BROKERS", nil),
		TradesTopic:    getenv("LIMITBOOK_TRADES_TOPIC", "trades"),
		BookTopTopic:   getenv("LIMITBOOK_BOOK_TOP_TOPIC", "book-top"),
	}
	cfg.OutboxEnabled = len(cfg.KafkaBrokers) > 0
	cfg.FeedEnabled = len(cfg.KafkaBrokers) > 0
	return cfg
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getbool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getint64(key string, def int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getlist(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
