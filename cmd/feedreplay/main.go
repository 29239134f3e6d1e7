// Command feedreplay serves a scripted match over websocket so the courtside
// server can run without the simulator.
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

	"github.com/okian/courtside/internal/adapters/feed/replay"
	"github.com/okian/courtside/internal/config"
	"github.com/okian/courtside/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "feedreplay exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.InitWithWriter(os.Stdout, cfg.LogFormat); err != nil {
		return err
	}
	_ = logger.SetLevelString(cfg.LogLevel)
	log := logger.Get().Named("feedreplay")

	opts := []replay.Option{
		replay.WithLogger(log),
		replay.WithInterval(config.Millis(cfg.ReplayIntervalMS)),
	}
	if cfg.ReplayScript != "" {
		steps, err := replay.LoadScript(cfg.ReplayScript)
		if err != nil {
			return err
		}
		opts = append(opts, replay.WithScript(steps))
	}

	srv := &http.Server{
		Addr:              cfg.ReplayAddr,
		Handler:           replay.New(opts...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "replaying match feed",
			logger.String("addr", cfg.ReplayAddr),
			logger.Int("interval_ms", cfg.ReplayIntervalMS),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("replay server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
