// Command seed loads the customer dataset CSV into a store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/churnboard/churnboard/internal/adapters/repository"
	"github.com/churnboard/churnboard/internal/config"
	"github.com/churnboard/churnboard/internal/domain/customer"
	"github.com/churnboard/churnboard/pkg/logger"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "seed",
		Usage: "Load customers from the dataset CSV into the configured store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "dataset CSV path",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "driver",
				Usage: "store driver (memory, sqlite3, pgx); defaults to database_driver",
			},
			&cli.StringFlag{
				Name:  "dsn",
				Usage: "store DSN; defaults to database_dsn",
			},
		},
		Action: seedAction,
	}
}

func seedAction(c *cli.Context) error {
	cfg, err := config.Load(c.Context)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.Named("seed")

	driver, dsn := cfg.DatabaseDriver, cfg.DatabaseDSN
	if c.IsSet("driver") {
		driver = c.String("driver")
	}
	if c.IsSet("dsn") {
		dsn = c.String("dsn")
	}
	if driver == repository.DriverMemory {
		log.Warn(c.Context, "memory store is discarded on exit")
	}

	f, err := os.Open(c.String("file"))
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	store, err := repository.New(c.Context, driver, dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	n, err := seed(c.Context, store, f)
	if err != nil {
		return err
	}
	log.Info(c.Context, "dataset loaded",
		logger.Int("customers", n),
		logger.String("driver", driver),
	)
	return nil
}

// seed upserts every row of the dataset and returns how many were written.
func seed(ctx context.Context, store repository.Store, r io.Reader) (int, error) {
	dr, err := customer.NewDatasetReader(r)
	if err != nil {
		return 0, err
	}

	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		c, err := dr.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := store.UpsertCustomer(ctx, c); err != nil {
			return n, fmt.Errorf("row %d: %w", dr.Row(), err)
		}
		n++
	}
}
