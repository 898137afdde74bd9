package cmd

import (
	"encoding/json"
	"fmt"

	"river/config"

	"github.com/urfave/cli/v2"
)

func refreshCmd() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Poll every feed once",
		Description: `Polls every subscribed feed once, ignoring the schedule, and prints
the refresh summary as JSON.

Failures are recorded on the feed exactly as the background poller would.`,
		Flags: []cli.Flag{
			databaseFlag(),
			configFlag(),
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfigOrDefault(ctx.String("config"))
			if err != nil {
				return err
			}

			database, err := openDatabase(ctx.Context, ctx.String("database"))
			if err != nil {
				return err
			}
			defer database.Close()

			result, err := newEngine(database, cfg).RefreshAllFeeds(ctx.Context)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
