/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"river/config"
	"river/db"
	"river/feeds"
	"river/ingest"
	"river/jobs"
	"river/river"
	"river/server"
	"river/syndication"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the river",
		Description: `Starts the river HTTP server and the background jobs.

		Migrates the database, subscribes the feeds listed in the config file
		and then polls every due feed on a fixed tick. Items older than the
		retention window are removed periodically. The river and the feed
		subscriptions are exposed through the JSON API under /api.`,
		Flags: []cli.Flag{
			databaseFlag(),
			configFlag(),
			&cli.StringFlag{
				Name:    "hostname",
				Aliases: []string{"n"},
				Value:   "",
				Usage:   "Host to listen on",
				EnvVars: []string{"RIVER_HOSTNAME"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   3000,
				Usage:   "Port to listen on",
				EnvVars: []string{"RIVER_PORT"},
			},
			&cli.StringFlag{
				Name:    "allow-origins",
				Value:   "",
				Usage:   "Comma separated CORS origins, disabled when empty",
				EnvVars: []string{"RIVER_ALLOW_ORIGINS"},
			},
			&cli.BoolFlag{
				Name:    "no-poll",
				Usage:   "Serve the API without polling feeds in the background",
				EnvVars: []string{"RIVER_NO_POLL"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfigOrDefault(ctx.String("config"))
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			database, err := openDatabase(runCtx, ctx.String("database"))
			if err != nil {
				return err
			}
			defer database.Close()

			if _, err := feeds.Seed(runCtx, database, cfg.Feeds); err != nil {
				return err
			}

			engine := newEngine(database, cfg)

			app := server.Server(&server.ServerConfig{
				Feeds:        database,
				River:        river.NewService(database),
				Refresher:    engine,
				AllowOrigins: ctx.String("allow-origins"),
			})

			var wg sync.WaitGroup

			if !ctx.Bool("no-poll") {
				wg.Add(1)
				go func() {
					defer wg.Done()
					jobs.NewPoller(engine, cfg.PollTick()).Run(runCtx)
				}()
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				jobs.NewRetention(database, cfg.RetentionPeriod(), cfg.RetentionInterval()).Run(runCtx)
			}()

			go func() {
				<-runCtx.Done()
				log.Info("Gracefully shutting down...")
				if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
					log.WithError(err).Error("Server shutdown failed")
				}
			}()

			addr := fmt.Sprintf("%s:%d", ctx.String("hostname"), ctx.Int("port"))
			log.WithField("addr", addr).Info("Starting server...")
			err = app.Listen(addr)

			// Listen returns on shutdown or when the listener fails, stop the jobs in both cases
			stop()
			wg.Wait()
			log.Info("Done!")

			return err
		},
	}
}

func newEngine(database *db.DB, cfg *config.TomlConfig) *ingest.Engine {
	client := syndication.NewGofeedClient(cfg.FetchTimeout(), cfg.Ingestion.UserAgent)
	return ingest.NewEngine(database, client, ingest.Options{
		Policy:        cfg.Policy(),
		SnippetLength: cfg.Ingestion.SnippetLength,
	})
}

// openDatabase migrates and opens the database, retrying while the file is locked by
// another process
func openDatabase(ctx context.Context, path string) (*db.DB, error) {
	log.WithField("database", path).Info("Database configured")

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 30 * time.Second

	var database *db.DB
	operation := func() error {
		if err := db.Migrate(path); err != nil {
			return err
		}
		opened, err := db.Open(path)
		if err != nil {
			return err
		}
		if err := opened.Ping(ctx); err != nil {
			opened.Close()
			return err
		}
		database = opened
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.WithFields(log.Fields{
			"error": err,
			"wait":  wait,
		}).Warn("Database not ready, retrying")
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, fmt.Errorf("could not open database %s: %w", path, err)
	}
	return database, nil
}
