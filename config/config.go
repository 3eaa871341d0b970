package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aep/cursorkv/idb"
	"github.com/aep/cursorkv/kv"
	"github.com/aep/cursorkv/level"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds everything needed to open a store and serve it.
type Config struct {
	// Engine selects the backing kv engine, see Engines.
	Engine string
	// DataDir holds one directory per database for disk engines.
	DataDir string
	// PDEndpoints are the TiKV placement driver addresses.
	PDEndpoints []string

	Location    string
	StorePrefix string

	Listen        string
	MetricsListen string

	// NatsURL is used for change notifications. Empty means in-process.
	NatsURL      string
	EmbeddedNats bool

	CacheSize int
	CacheTTL  time.Duration

	OtelEndpoint string
	LogLevel     string
}

var Engines = []string{"pebble", "pebble-mem", "leveldb", "leveldb-mem", "rosedb", "skiplist", "tikv"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine", "pebble")
	v.SetDefault("data-dir", "./data")
	v.SetDefault("pd-endpoints", []string{"127.0.0.1:2379"})
	v.SetDefault("location", "default")
	v.SetDefault("store-prefix", level.DefaultStorePrefix)
	v.SetDefault("listen", ":27666")
	v.SetDefault("metrics-listen", ":27667")
	v.SetDefault("nats-url", "")
	v.SetDefault("embedded-nats", false)
	v.SetDefault("cache-size", 10000)
	v.SetDefault("cache-ttl", time.Minute)
	v.SetDefault("otel-endpoint", "")
	v.SetDefault("log-level", "info")
}

// AddFlags registers the configuration flags on cmd and its children.
func AddFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("config", "", "yaml config file")
	f.String("engine", "pebble", "storage engine: "+strings.Join(Engines, ", "))
	f.String("data-dir", "./data", "directory for disk engines")
	f.StringSlice("pd-endpoints", []string{"127.0.0.1:2379"}, "tikv placement driver endpoints")
	f.String("location", "default", "store location")
	f.String("store-prefix", level.DefaultStorePrefix, "prefix of the database name")
	f.String("log-level", "info", "debug, info, warn or error")
}

// AddServeFlags registers the flags only the server uses.
func AddServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("listen", ":27666", "http api listen address")
	f.String("metrics-listen", ":27667", "metrics and health listen address")
	f.String("nats-url", "", "nats url for change notifications")
	f.Bool("embedded-nats", false, "start an embedded nats server")
	f.Int("cache-size", 10000, "read cache capacity")
	f.Duration("cache-ttl", time.Minute, "read cache ttl")
	f.String("otel-endpoint", "", "otlp grpc endpoint for traces")
}

// Load merges defaults, the yaml file given by --config, CURSORKV_* env
// variables and flags set on cmd, in increasing priority.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CURSORKV")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return nil, err
		}
		if f := cmd.Flags().Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	c := &Config{
		Engine:        v.GetString("engine"),
		DataDir:       v.GetString("data-dir"),
		PDEndpoints:   v.GetStringSlice("pd-endpoints"),
		Location:      v.GetString("location"),
		StorePrefix:   v.GetString("store-prefix"),
		Listen:        v.GetString("listen"),
		MetricsListen: v.GetString("metrics-listen"),
		NatsURL:       v.GetString("nats-url"),
		EmbeddedNats:  v.GetBool("embedded-nats"),
		CacheSize:     v.GetInt("cache-size"),
		CacheTTL:      v.GetDuration("cache-ttl"),
		OtelEndpoint:  v.GetString("otel-endpoint"),
		LogLevel:      v.GetString("log-level"),
	}
	return c, c.validate()
}

func (c *Config) validate() error {
	found := false
	for _, e := range Engines {
		if e == c.Engine {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	if c.Location == "" {
		return level.ErrLocationRequired
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache-size must not be negative")
	}
	return nil
}

func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func (c *Config) dir() (string, error) {
	if err := os.MkdirAll(c.DataDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return filepath.Abs(c.DataDir)
}

// Opener builds the engine opener. Memory engines start empty on every call.
func (c *Config) Opener() (kv.Opener, error) {
	switch c.Engine {
	case "pebble-mem":
		return kv.NewMemPebbleOpener(), nil
	case "leveldb-mem":
		return kv.NewMemLevelDBOpener(), nil
	case "skiplist":
		return kv.NewSkiplistOpener(), nil
	case "tikv":
		return &kv.TikvOpener{Endpoints: c.PDEndpoints}, nil
	}

	dir, err := c.dir()
	if err != nil {
		return nil, err
	}
	switch c.Engine {
	case "pebble":
		return &kv.PebbleOpener{Dir: dir}, nil
	case "leveldb":
		return &kv.LevelDBOpener{Dir: dir}, nil
	case "rosedb":
		return &kv.RoseDBOpener{Dir: dir}, nil
	}
	return nil, fmt.Errorf("unknown engine %q", c.Engine)
}

func (c *Config) Factory() (*idb.Factory, error) {
	o, err := c.Opener()
	if err != nil {
		return nil, err
	}
	return idb.NewFactory(o), nil
}

// OpenStore opens the configured store. The returned func closes the store
// and its factory.
func (c *Config) OpenStore(ctx context.Context) (*level.Store, func(), error) {
	f, err := c.Factory()
	if err != nil {
		return nil, nil, err
	}

	s, err := level.New(c.Location, level.WithFactory(f), level.WithStorePrefix(c.StorePrefix))
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if err := s.Open(ctx); err != nil {
		f.Close()
		return nil, nil, err
	}

	return s, func() {
		if err := s.Close(context.Background()); err != nil {
			slog.Warn("closing store", "err", err)
		}
		f.Close()
	}, nil
}

// Destroy removes the configured store's database.
func (c *Config) Destroy(ctx context.Context) error {
	f, err := c.Factory()
	if err != nil {
		return err
	}
	defer f.Close()
	return level.Destroy(ctx, f, c.Location, c.StorePrefix)
}
