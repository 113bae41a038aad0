package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"storefront/internal/app"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/logger"
	"storefront/internal/router"
)

func main() {
	// .env 仅用于本地开发，不存在时忽略
	_ = godotenv.Load()

	cliApp := &cli.App{
		Name:  "storefront",
		Usage: "storefront checkout API",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "drain",
						Usage: "also drain the redis batch queue in this process",
					},
				},
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create or update database tables",
				Action: migrate,
			},
		},
		DefaultCommand: "serve",
	}
	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if c.Bool("drain") && a.DelayQueue != nil {
		go a.DelayQueue.Run(ctx, a.Correlator.ConfirmBatch)
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: router.New(router.Deps{
			Catalog: a.Catalog,
			Orders:  a.Orders,
			Redis:   a.Redis,
			Config:  cfg,
			Log:     a.Log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "http server")
		}
	case <-ctx.Done():
	}

	a.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Wrap(srv.Shutdown(shutdownCtx), "shutdown")
}

func migrate(*cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg.Database, log, cfg.Log.Level, false)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	if err := database.Migrate(db); err != nil {
		return err
	}
	log.Info("migrations applied", zap.String("driver", cfg.Database.Driver))
	return nil
}
