// Package app wires config into a ready query service: logger, hooks,
// provider, generation store, transport, and the query catalogue.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/config"
	"github.com/unkn0wn-root/querycache/genstore"
	asynchook "github.com/unkn0wn-root/querycache/hooks/async"
	qclogrus "github.com/unkn0wn-root/querycache/log/logrus"
	qcslog "github.com/unkn0wn-root/querycache/log/slog"
	qczap "github.com/unkn0wn-root/querycache/log/zap"
	"github.com/unkn0wn-root/querycache/internal/otel"
	"github.com/unkn0wn-root/querycache/provider"
	"github.com/unkn0wn-root/querycache/provider/bigcache"
	"github.com/unkn0wn-root/querycache/provider/redis"
	"github.com/unkn0wn-root/querycache/provider/ristretto"
	"github.com/unkn0wn-root/querycache/queries"
	"github.com/unkn0wn-root/querycache/sloghooks"
	"github.com/unkn0wn-root/querycache/transport"
)

const (
	serviceName  = "postsctl"
	genRedisTTL  = 24 * time.Hour
	hookQueueLen = 1024
)

type App struct {
	Service *queries.Service
	Logger  querycache.Logger

	client   *querycache.Client
	hooks    *asynchook.Hooks
	sync     func() error
	shutdown func(context.Context) error
}

// New builds the app. Diagnostic output (logs, hook events) goes to stderr.
func New(ctx context.Context, cfg config.Config, stderr io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{sync: func() error { return nil }}

	lg, err := a.newLogger(cfg, stderr)
	if err != nil {
		return nil, err
	}
	a.Logger = lg

	a.shutdown, err = otel.Setup(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("otel setup: %w", err)
	}

	sl := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slogLevel(cfg.LogLevel)}))
	a.hooks = asynchook.New(sloghooks.New(sl, sloghooks.Options{SelfHealEvery: 10}), 1, hookQueueLen)

	p, gens, err := newStorage(cfg)
	if err != nil {
		a.closeAux(ctx)
		return nil, err
	}
	store, err := querycache.NewStore(querycache.StoreOptions{
		Namespace: cfg.Namespace,
		Provider:  p,
		GenStore:  gens,
		Logger:    lg,
		Hooks:     a.hooks,
		EntryTTL:  cfg.EntryTTL,
	})
	if err != nil {
		a.closeAux(ctx)
		return nil, err
	}
	a.client, err = querycache.NewClient(store, querycache.ClientOptions{
		StaleTime: cfg.StaleTime,
		Retry: querycache.RetryPolicy{
			Retries:  cfg.Retries,
			Disabled: cfg.Retries == 0,
			Delay:    cfg.RetryDelay,
		},
	})
	if err != nil {
		_ = store.Close(ctx)
		a.closeAux(ctx)
		return nil, err
	}

	tc, err := transport.New(transport.Options{
		BaseURL:    cfg.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Logger:     lg,
		UserAgent:  cfg.UserAgent,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	qopts := queries.Options{Codec: cfg.Codec, Logger: lg}
	if cfg.Provider == "redis" {
		qopts.MaxDecode = cfg.MaxValueBytes
	}
	a.Service, err = queries.New(a.client, tc, qopts)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

// Close stops the query client, drains hook events, flushes logs and spans.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.client != nil {
		errs = append(errs, a.client.Close(ctx))
	}
	errs = append(errs, a.closeAux(ctx))
	return errors.Join(errs...)
}

func (a *App) closeAux(ctx context.Context) error {
	if a.hooks != nil {
		a.hooks.Close()
	}
	var errs []error
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}
	// zap's Sync fails on terminals; nothing to recover
	_ = a.sync()
	return errors.Join(errs...)
}

func (a *App) newLogger(cfg config.Config, stderr io.Writer) (querycache.Logger, error) {
	switch cfg.LogBackend {
	case "logrus":
		return qclogrus.New(cfg.LogLevel, stderr)
	case "slog":
		h := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slogLevel(cfg.LogLevel)})
		return qcslog.Logger{L: slog.New(h)}, nil
	default:
		z, err := qczap.New(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		a.sync = z.Sync
		return z, nil
	}
}

func newStorage(cfg config.Config) (provider.Provider, genstore.GenStore, error) {
	var rdb *goredis.Client
	if cfg.UsesRedis() {
		rdb = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	}

	var gens genstore.GenStore
	if cfg.GenStore == "redis" {
		// the generation store owns the client and closes it
		gens = genstore.NewRedisGenStoreWithTTL(rdb, cfg.Namespace, genRedisTTL)
	}

	var (
		p   provider.Provider
		err error
	)
	switch cfg.Provider {
	case "bigcache":
		bcfg := bigcache.DefaultConfig()
		if cfg.EntryTTL > 0 {
			bcfg.LifeWindow = cfg.EntryTTL
		}
		p, err = bigcache.New(bcfg)
	case "redis":
		p, err = redis.New(redis.Config{Client: rdb, CloseClient: gens == nil})
	default:
		p, err = ristretto.New(ristretto.DefaultConfig())
	}
	if err != nil {
		if gens != nil {
			_ = gens.Close(context.Background())
		} else if rdb != nil {
			_ = rdb.Close()
		}
		return nil, nil, fmt.Errorf("%s provider: %w", cfg.Provider, err)
	}
	return p, gens, nil
}

func slogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}
