package env

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/luma/parcel/protocol"
)

const (
	StorageDisk   = "disk"
	StorageMemory = "memory"
)

type Config struct {
	PrefixWidth     int    `env:"PARCEL_PREFIX_WIDTH,default=4"`
	MaxPayloadBytes uint64 `env:"PARCEL_MAX_PAYLOAD_BYTES,default=0"`

	// Storage picks the server store, disk or memory
	Storage     string `env:"PARCEL_STORAGE,default=disk"`
	StorageDir  string `env:"PARCEL_STORAGE_DIR,default=."`
	DownloadDir string `env:"PARCEL_DOWNLOAD_DIR,default=."`

	// Snapshot is where the memory store is restored from on start up and
	// backed up to on shutdown. Empty disables snapshots.
	Snapshot string `env:"PARCEL_SNAPSHOT"`

	AllowEmptyPut     bool     `env:"PARCEL_ALLOW_EMPTY_PUT,default=false"`
	AllowedExtensions []string `env:"PARCEL_ALLOWED_EXTENSIONS"`

	MaxConns     int           `env:"PARCEL_MAX_CONNS,default=1"`
	IdleTimeout  time.Duration `env:"PARCEL_IDLE_TIMEOUT,default=0s"`
	WriteTimeout time.Duration `env:"PARCEL_WRITE_TIMEOUT,default=30s"`

	LogLevel  string `env:"PARCEL_LOG_LEVEL,default=info"`
	DebugHTTP bool   `env:"PARCEL_DEBUG_HTTP"`
}

// LoadConfig reads the config from the environment, after loading
// .env.local if there is one.
func LoadConfig(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("env: load .env.local: %w", err)
		}
	}

	return ProcessConfig(ctx, envconfig.OsLookuper())
}

// ProcessConfig reads the config through lookuper and validates it.
func ProcessConfig(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	config := Config{}

	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if _, err := protocol.MaxPayloadSize(c.PrefixWidth); err != nil {
		return fmt.Errorf("env: PARCEL_PREFIX_WIDTH: %w", err)
	}

	c.Storage = strings.ToLower(c.Storage)
	if c.Storage != StorageDisk && c.Storage != StorageMemory {
		return fmt.Errorf("env: PARCEL_STORAGE must be %q or %q, got %q", StorageDisk, StorageMemory, c.Storage)
	}

	if c.MaxConns < 1 {
		return fmt.Errorf("env: PARCEL_MAX_CONNS must be at least 1, got %d", c.MaxConns)
	}

	if c.IdleTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("env: timeouts cannot be negative")
	}

	return nil
}

// CodecConfig is the framing configuration both ends must agree on.
func (c *Config) CodecConfig() protocol.Config {
	return protocol.Config{
		PrefixWidth:     c.PrefixWidth,
		MaxPayloadBytes: c.MaxPayloadBytes,
	}
}
