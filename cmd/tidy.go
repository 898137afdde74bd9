/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"river/config"
	"river/db"

	"github.com/urfave/cli/v2"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the database",
		Description: `Tidy up the database by removing items that are old.

		Removes items published before the retention window configured in the
		config file (30 days by default). Source links of removed items go with them.`,
		Flags: []cli.Flag{
			databaseFlag(),
			configFlag(),
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfigOrDefault(ctx.String("config"))
			if err != nil {
				return err
			}

			deleted, err := db.Tidy(ctx.Context, ctx.String("database"), cfg.RetentionPeriod())
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d items\n", deleted)
			return nil
		},
	}
}
