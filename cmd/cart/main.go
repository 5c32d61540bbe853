// cmd/cart/main.go

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/norun9/storefront-cart/cart"
	"github.com/norun9/storefront-cart/cartstore"
	"github.com/norun9/storefront-cart/stock"
	"github.com/norun9/storefront-cart/telemetry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

const version = "v1.0.0"

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func realMain(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, rest, err := loadConfig(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		fmt.Fprint(stderr, usage)
		return 2
	}
	if len(rest) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionID := uuid.NewString()
	log := newLogger(cfg.LogLevel, stderr).WithField("session.id", sessionID)

	// ----------------------------------------------------------------
	// 1) Telemetry
	var spanOut io.Writer
	if cfg.OTelStdout {
		spanOut = stderr
	}
	providers, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName:    "cart",
		ServiceVersion: version,
		SessionID:      sessionID,
		Endpoint:       cfg.OTLPEndpoint,
		Stdout:         spanOut,
	})
	if err != nil {
		log.WithError(err).Error("failed to initialize telemetry")
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("error shutting down telemetry")
		}
	}()

	// ----------------------------------------------------------------
	// 2) Persistence backend
	backend, closeBackend, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("failed to open cart store")
		return 1
	}
	defer closeBackend()

	// ----------------------------------------------------------------
	// 3) Stock service and cart session
	stockClient, err := stock.NewClient(cfg.StockURL, stock.WithTimeout(cfg.StockTimeout))
	if err != nil {
		log.WithError(err).Error("failed to create stock client")
		return 1
	}

	store, err := cart.NewStore(ctx, backend, stockClient, &terminalNotifier{out: stderr},
		cart.WithKey(cartstore.Key(cfg.Namespace, cartstore.CartKey)),
		cart.WithLogger(log),
	)
	if err != nil {
		log.WithError(err).Error("failed to load cart")
		return 1
	}

	a := &app{store: store, backend: backend, in: stdin, out: stdout}
	if err := a.run(ctx, rest); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(stderr, err)
			fmt.Fprint(stderr, usage)
			return 2
		}
		log.WithError(err).Error("command failed")
		return 1
	}
	return 0
}

func openBackend(ctx context.Context, cfg Config, log logrus.FieldLogger) (cartstore.ICartStore, func(), error) {
	var (
		backend cartstore.ICartStore
		closer  = func() {}
	)

	switch cfg.Store {
	case "memory":
		backend = cartstore.NewLocalCartStore()
	case "redis":
		log.Infof("using RedisCartStore with address %s", cfg.RedisAddr)
		redisStore := cartstore.NewRedisCartStore(cfg.RedisAddr,
			cartstore.WithRedisLogger(log),
			cartstore.WithTTL(cfg.RedisTTL),
		)
		backend = redisStore
		closer = func() {
			if err := redisStore.Close(); err != nil {
				log.WithError(err).Warn("error closing redis client")
			}
		}
	default:
		log.Debugf("using FileCartStore at %s", cfg.StorePath)
		backend = cartstore.NewFileCartStore(cfg.StorePath)
	}

	if err := backend.Initialize(ctx); err != nil {
		closer()
		return nil, nil, err
	}
	return backend, closer, nil
}
