package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/courtside/internal/adapters/http/api"
	"github.com/okian/courtside/internal/adapters/http/site"
	"github.com/okian/courtside/internal/adapters/http/swagger"
	"github.com/okian/courtside/internal/adapters/repository"
	"github.com/okian/courtside/internal/adapters/rosterclient"
	service "github.com/okian/courtside/internal/app"
	"github.com/okian/courtside/internal/config"
	"github.com/okian/courtside/internal/reconcile"
	"github.com/okian/courtside/internal/stream"
	"github.com/okian/courtside/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// HTTP server timeout constants. WriteTimeout stays zero so the live view
// websocket is not cut off; handlers bound their own writes.
const (
	readTimeout       = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "courtside exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

// apiStore is what both the session and the HTTP layer need from a roster
// store. The SQLite repository and the remote client both satisfy it.
type apiStore interface {
	service.RosterStore
	api.RosterStore
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.InitWithWriter(os.Stdout, cfg.LogFormat); err != nil {
		return err
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	feed := newFeed(cfg, log)
	defer func() { _ = feed.Close() }()

	sess := service.NewSession(store, feed,
		service.WithLogger(log.Named("session")),
		service.WithHomeTeam(cfg.HomeTeam),
		service.WithAwayTeam(cfg.AwayTeam),
		service.WithOpponentSeed(uint64(cfg.OpponentSeed)), //nolint:gosec // seed only
		service.WithLogHistory(cfg.LogHistory),
		service.WithReconcilerOptions(
			reconcile.WithQueueSize(cfg.PersistQueueSize),
			reconcile.WithPersistTimeout(config.Millis(cfg.PersistTimeoutMS)),
		),
	)
	if err := sess.Start(ctx); err != nil {
		return err
	}

	apiServer := api.NewServer(store, sess,
		api.WithLogger(log.Named("api")),
		api.WithCORSOrigins(cfg.CORSOrigins),
	)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           routes(apiServer),
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("feed_url", cfg.FeedURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		apiServer.Close()
		err := srv.Shutdown(shutdownCtx)
		if serr := sess.Stop(shutdownCtx); serr != nil {
			log.Warn(shutdownCtx, "session stop incomplete", logger.Error(serr))
		}
		return err
	})

	err = g.Wait()
	log.Info(context.Background(), "server stopped")
	return err
}

// routes mounts the API, the docs and the viewer on one router.
func routes(apiServer *api.Server) http.Handler {
	r := apiServer.Router()
	swagger.Register(r)
	site.Register(r)
	return r
}

func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (apiStore, func(), error) {
	if cfg.RosterURL != "" {
		log.Info(ctx, "using remote roster store", logger.String("url", cfg.RosterURL))
		c := rosterclient.New(cfg.RosterURL,
			rosterclient.WithLogger(log.Named("rosterclient")),
			rosterclient.WithRateLimit(cfg.RosterRateLimit, int(cfg.RosterRateLimit)+1),
		)
		return c, func() {}, nil
	}

	repo, err := repository.Open(ctx, cfg.DBPath, repository.WithLogger(log.Named("repository")))
	if err != nil {
		return nil, nil, err
	}
	if cfg.Seed {
		seeded, err := repo.SeedIfEmpty(ctx)
		if err != nil {
			_ = repo.Close()
			return nil, nil, err
		}
		if seeded {
			log.Info(ctx, "seeded roster store", logger.String("path", cfg.DBPath))
		}
	}
	return repo, func() { _ = repo.Close() }, nil
}

func newFeed(cfg *config.Config, log logger.Logger) *stream.Client {
	return stream.New(cfg.FeedURL,
		stream.WithLogger(log.Named("stream")),
		stream.WithDialTimeout(config.Millis(cfg.FeedDialTimeoutMS)),
		stream.WithWriteTimeout(config.Millis(cfg.FeedWriteTimeoutMS)),
		stream.WithReadTimeout(config.Millis(cfg.FeedReadTimeoutMS)),
		stream.WithReconnect(stream.ReconnectPolicy{
			MaxRetries: cfg.ReconnectMaxRetries,
			Initial:    config.Millis(cfg.ReconnectInitialMS),
			Max:        config.Millis(cfg.ReconnectMaxMS),
			Jitter:     cfg.ReconnectJitter,
		}),
	)
}
