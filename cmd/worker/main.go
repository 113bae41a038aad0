package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"storefront/internal/app"
	"storefront/internal/config"
)

func main() {
	_ = godotenv.Load()

	cliApp := &cli.App{
		Name:   "storefront-worker",
		Usage:  "drain deferred batch checks from redis",
		Action: run,
	}
	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Batch.Scheduler != "redis" {
		return errors.New("worker requires STOREFRONT_BATCH_SCHEDULER=redis")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	a.DelayQueue.Run(ctx, a.Correlator.ConfirmBatch)
	return nil
}
