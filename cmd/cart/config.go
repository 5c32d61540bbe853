// cmd/cart/config.go

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/norun9/storefront-cart/cartstore"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the resolved configuration of one invocation.
type Config struct {
	StockURL     string
	StockTimeout time.Duration

	Store     string
	StorePath string
	RedisAddr string
	RedisTTL  time.Duration
	Namespace string

	LogLevel     string
	OTLPEndpoint string
	OTelStdout   bool
}

// loadConfig resolves flags, environment, an optional config file and
// defaults, in that order of precedence. It returns the remaining arguments.
// --help prints usage to out and returns pflag.ErrHelp.
func loadConfig(args []string, out io.Writer) (Config, []string, error) {
	fs := pflag.NewFlagSet("cart", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.SetInterspersed(false)
	fs.Usage = func() {
		fmt.Fprint(out, usage)
		fmt.Fprintln(out, "\nflags:")
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "path to a config file (yaml, toml or json)")
	fs.String("stock-url", "", "base url of the stock service")
	fs.Duration("stock-timeout", 0, "deadline for each stock request, 0 for none")
	fs.String("store", "", "persistence backend: file, redis or memory")
	fs.String("store-path", "", "file used by the file backend")
	fs.String("redis-addr", "", "address of the redis backend")
	fs.String("namespace", "", "prefix of persistence keys")
	fs.String("log-level", "", "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}

	v := viper.New()
	v.SetDefault("stock_url", "http://localhost:3333")
	v.SetDefault("stock_timeout", time.Duration(0))
	v.SetDefault("store", "file")
	v.SetDefault("store_path", defaultStorePath())
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_ttl", time.Duration(0))
	v.SetDefault("namespace", cartstore.DefaultNamespace)
	v.SetDefault("log_level", "info")
	v.SetDefault("otel_exporter_otlp_endpoint", "")
	v.SetDefault("otel_stdout", false)
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"stock_url":     "stock-url",
		"stock_timeout": "stock-timeout",
		"store":         "store",
		"store_path":    "store-path",
		"redis_addr":    "redis-addr",
		"namespace":     "namespace",
		"log_level":     "log-level",
	} {
		f := fs.Lookup(flag)
		if !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return Config{}, nil, errors.Wrapf(err, "bind flag %s", flag)
		}
	}

	if *configPath != "" {
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, nil, errors.Wrapf(err, "read config %s", *configPath)
		}
	}

	cfg := Config{
		StockURL:     v.GetString("stock_url"),
		StockTimeout: v.GetDuration("stock_timeout"),
		Store:        v.GetString("store"),
		StorePath:    v.GetString("store_path"),
		RedisAddr:    v.GetString("redis_addr"),
		RedisTTL:     v.GetDuration("redis_ttl"),
		Namespace:    v.GetString("namespace"),
		LogLevel:     v.GetString("log_level"),
		OTLPEndpoint: v.GetString("otel_exporter_otlp_endpoint"),
		OTelStdout:   v.GetBool("otel_stdout"),
	}
	switch cfg.Store {
	case "file", "redis", "memory":
	default:
		return Config{}, nil, errors.Errorf("unknown store %q", cfg.Store)
	}
	return cfg, fs.Args(), nil
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".rocketshoes", "cart.json")
	}
	return filepath.Join(home, ".rocketshoes", "cart.json")
}
