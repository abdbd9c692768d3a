package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	DBDSN    string
	LogFile  string
	Currency string
	SeedDemo bool

	// Notification fan-out: log | kafka | redis
	NotifySink   string
	NotifyBuffer int
	KafkaBrokers []string
	KafkaTopic   string
	RedisAddr    string
	RedisStream  string
}

// Load reads .env (if present) and the process environment. Variables already set in the
// environment win over .env values.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:         getenv("PORT", "8081"),
		DBDSN:        getenv("DB_DSN", "crossbuy.db"), // sqlite file in project root
		LogFile:      os.Getenv("LOG_FILE"),
		Currency:     strings.ToUpper(getenv("CURRENCY", "CRC")),
		NotifySink:   strings.ToLower(getenv("NOTIFY_SINK", "log")),
		KafkaBrokers: splitCSV(getenv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   getenv("KAFKA_TOPIC", "crossbuy.order-events"),
		RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),
		RedisStream:  getenv("REDIS_STREAM", "crossbuy:order_events"),
	}

	buf, err := getenvInt("NOTIFY_BUFFER", 256)
	if err != nil {
		return Config{}, fmt.Errorf("invalid NOTIFY_BUFFER: %w", err)
	}
	if buf <= 0 {
		return Config{}, fmt.Errorf("NOTIFY_BUFFER must be > 0")
	}
	cfg.NotifyBuffer = buf

	seed, err := strconv.ParseBool(getenv("SEED_DEMO", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid SEED_DEMO: %w", err)
	}
	cfg.SeedDemo = seed

	switch cfg.NotifySink {
	case "log", "redis":
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return Config{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
		}
	default:
		return Config{}, fmt.Errorf("unknown NOTIFY_SINK %q", cfg.NotifySink)
	}

	log.Printf("[config] PORT=%s DB_DSN=%s NOTIFY_SINK=%s CURRENCY=%s LOG_FILE=%s",
		cfg.Port, redactDSN(cfg.DBDSN), cfg.NotifySink, cfg.Currency, cfg.LogFile)
	return cfg, nil
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// redactDSN hides the password part of a postgres URL before it reaches the log.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		return dsn[:scheme+3] + creds[:i] + ":***" + dsn[at:]
	}
	return dsn
}
