// Package config loads the command line and environment configuration.
package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	flags "github.com/jessevdk/go-flags"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/pathfind"
)

// Config defines the configuration options for feelab.
//
// See Load for details on the configuration load process.
type Config struct {
	DebugLevel  string `short:"d" long:"debuglevel" default:"info" description:"Logging level {trace, debug, info, warn, error, critical}, or <subsystem>=<level>,... pairs"`
	LogFile     string `long:"log-file" env:"LOG_FILE" description:"Also write logs to this rotated file"`
	MetricsAddr string `long:"metrics-addr" env:"METRICS_ADDR" description:"Serve /metrics and /health on this address (empty to disable)"`

	UseMemory     bool   `long:"use-memory" description:"Use in-memory storage instead of PostgreSQL"`
	PostgresDSN   string `long:"postgres-dsn" env:"POSTGRES_DSN" description:"PostgreSQL connection string"`
	ClickhouseDSN string `long:"clickhouse-dsn" env:"CLICKHOUSE_DSN" description:"ClickHouse connection string for per-payment rows"`

	BitcoinRPCAddress  string `long:"bitcoin-rpc" env:"BITCOIN_RPC_ADDRESS" default:"http://127.0.0.1:8443" description:"Bitcoin node JSON-RPC address"`
	BitcoinRPCUser     string `long:"bitcoin-rpc-user" env:"BITCOIN_RPC_USER" description:"Bitcoin node RPC username"`
	BitcoinRPCPassword string `long:"bitcoin-rpc-pass" env:"BITCOIN_RPC_PASSWORD" default-mask:"-" description:"Bitcoin node RPC password"`
	TxCacheSize        int    `long:"tx-cache-size" default:"50000" description:"Previous transactions kept for input lookups"`

	SparkURL      string        `long:"spark-url" env:"SPARK_URL" description:"Lightning gateway URL"`
	SparkToken    string        `long:"spark-token" env:"SPARK_TOKEN" default-mask:"-" description:"Lightning gateway access key"`
	SparkInsecure bool          `long:"spark-insecure" description:"Skip TLS certificate verification of the gateway"`
	RosterURL     string        `long:"roster-url" env:"ROSTER_URL" description:"Node ranking API base URL; the gateway node list is used when empty"`
	RosterRange   string        `long:"roster-range" default:"250-1250" description:"Range of ranked nodes to sample from"`
	RemoteSearch  bool          `long:"remote-search" description:"Price payments with gateway getroute calls instead of local search"`
	SearchTimeout time.Duration `long:"search-timeout" default:"10s" description:"Per call timeout of remote searches"`

	KafkaBrokers []string `long:"kafka-broker" env:"KAFKA_BROKERS" env-delim:"," description:"Kafka broker to publish day aggregates to (repeatable)"`
	KafkaTopic   string   `long:"kafka-topic" env:"KAFKA_TOPIC" default:"feelab.days" description:"Kafka topic for day aggregates"`

	Workers        int     `short:"w" long:"workers" default:"12" description:"Concurrent block workers"`
	Precision      float64 `long:"precision" default:"0.05" description:"Amount grid granularity for the fee cache"`
	Attempts       int     `long:"attempts" default:"7" description:"Searches tried per uncached amount"`
	Successes      int     `long:"successes" default:"3" description:"Successful searches needed per uncached amount"`
	Samples        int     `long:"samples" default:"20" description:"Searches per estimator rung"`
	CapacityPolicy string  `long:"capacity-policy" default:"price" description:"Channel capacity check {price, amount, ignore}"`
	LadderFallback bool    `long:"ladder-fallback" description:"Price amounts without a sampled route with the estimator ladder"`
	Seed           uint64  `long:"seed" description:"Random seed for node sampling (0 picks one from the clock)"`

	Day       string `long:"day" description:"Compute this day (YYYY-MM-DD) instead of the next missing one"`
	ReportDir string `long:"report-dir" description:"Write markdown and csv reports to this directory"`
}

// Load parses args (without the program name) over the environment and
// validates the result. Help requests are returned as *flags.Error with type
// flags.ErrHelp.
func Load(args []string) (*Config, error) {
	cfg := Config{}
	parser := flags.NewParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsHelp reports whether err is a help request from Load.
func IsHelp(err error) bool {
	var ferr *flags.Error
	return errors.As(err, &ferr) && ferr.Type == flags.ErrHelp
}

// Validate checks option ranges and required connections.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("--workers must be at least 1, got %d", c.Workers)
	}
	if math.IsNaN(c.Precision) || c.Precision <= 0 || c.Precision >= 1 {
		return fmt.Errorf("--precision must be in (0, 1), got %v", c.Precision)
	}
	if c.Attempts < 1 || c.Successes < 1 {
		return fmt.Errorf("--attempts and --successes must be positive")
	}
	if c.Successes > c.Attempts {
		return fmt.Errorf("--successes (%d) exceeds --attempts (%d)", c.Successes, c.Attempts)
	}
	if c.Samples < 1 {
		return fmt.Errorf("--samples must be at least 1, got %d", c.Samples)
	}
	if c.TxCacheSize < 1 {
		return fmt.Errorf("--tx-cache-size must be at least 1, got %d", c.TxCacheSize)
	}
	if c.SearchTimeout <= 0 {
		return fmt.Errorf("--search-timeout must be positive")
	}
	if _, err := c.Capacity(); err != nil {
		return fmt.Errorf("--capacity-policy: %w", err)
	}
	if _, err := c.TargetDay(); err != nil {
		return fmt.Errorf("--day: %w", err)
	}
	if !c.UseMemory && c.PostgresDSN == "" {
		return errors.New("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}
	if c.SparkURL == "" {
		return errors.New("--spark-url is required")
	}
	if c.BitcoinRPCAddress == "" {
		return errors.New("--bitcoin-rpc is required")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("--kafka-topic is required with --kafka-broker")
	}
	return nil
}

// Capacity returns the parsed capacity policy.
func (c *Config) Capacity() (pathfind.CapacityPolicy, error) {
	return pathfind.ParseCapacityPolicy(c.CapacityPolicy)
}

// TargetDay returns the parsed --day, or the zero time when unset.
func (c *Config) TargetDay() (time.Time, error) {
	if c.Day == "" {
		return time.Time{}, nil
	}
	return time.Parse(domain.DayLayout, c.Day)
}
