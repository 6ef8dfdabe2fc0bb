// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"nft-holdings/internal/evm"
	"nft-holdings/internal/holdings"
	"nft-holdings/internal/metadata"
)

// Config holds all settings for the server and the CLI.
type Config struct {
	Env      string `validate:"oneof=development production test"`
	LogLevel string `validate:"oneof=trace debug info warn error"`

	RPCEndpoint     string        `validate:"required,url"`
	WSEndpoint      string        `validate:"omitempty,url"`
	ContractAddress string        `validate:"required,eth_addr"`
	RPCTimeout      time.Duration `validate:"gt=0"`
	RPCMaxRetries   int           `validate:"gte=0,lte=10"`

	IPFSGateway      string        `validate:"required,url"`
	ArweaveGateway   string        `validate:"required,url"`
	MetadataTimeout  time.Duration `validate:"gt=0"`
	MetadataMaxBytes int64         `validate:"gt=0"`

	PollInterval   time.Duration `validate:"gt=0"`
	TrackerIdleTTL time.Duration `validate:"gt=0"`

	HTTPAddr      string `validate:"required"`
	PostgresDSN   string `validate:"omitempty,startswith=postgres"`
	ClickHouseDSN string `validate:"omitempty,startswith=clickhouse://"`
	UseMemory     bool
}

// Load reads an optional .env file and the process environment. Variables
// already set in the environment take precedence over the file.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var p parser
	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RPCEndpoint:     os.Getenv("RPC_ENDPOINT"),
		WSEndpoint:      os.Getenv("WS_ENDPOINT"),
		ContractAddress: os.Getenv("CONTRACT_ADDRESS"),
		RPCTimeout:      p.duration("RPC_TIMEOUT", evm.DefaultTimeout),
		RPCMaxRetries:   p.int("RPC_MAX_RETRIES", evm.DefaultMaxRetries),

		IPFSGateway:      getEnv("IPFS_GATEWAY", metadata.DefaultIPFSGateway),
		ArweaveGateway:   getEnv("ARWEAVE_GATEWAY", metadata.DefaultArweaveGateway),
		MetadataTimeout:  p.duration("METADATA_TIMEOUT", metadata.DefaultTimeout),
		MetadataMaxBytes: int64(p.int("METADATA_MAX_BYTES", metadata.DefaultMaxBytes)),

		PollInterval:   p.duration("POLL_INTERVAL", holdings.DefaultPollInterval),
		TrackerIdleTTL: p.duration("TRACKER_IDLE_TTL", holdings.DefaultIdleTTL),

		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		ClickHouseDSN: os.Getenv("CLICKHOUSE_DSN"),
		UseMemory:     p.bool("USE_MEMORY", false),
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints. Flag overrides should call it again.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ErrStoresRequired is returned by ValidateStores when history storage is unconfigured.
var ErrStoresRequired = errors.New("POSTGRES_DSN and CLICKHOUSE_DSN are required unless USE_MEMORY is set")

// ValidateStores checks that history storage is configured. Only commands
// that persist or read history need it.
func (c *Config) ValidateStores() error {
	if c.UseMemory {
		return nil
	}
	if c.PostgresDSN == "" || c.ClickHouseDSN == "" {
		return ErrStoresRequired
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// parser keeps the first conversion error.
type parser struct {
	err error
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" || p.err != nil {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
		return fallback
	}
	return d
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" || p.err != nil {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
		return fallback
	}
	return n
}

func (p *parser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" || p.err != nil {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
		return fallback
	}
	return b
}
