package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"river/db"
	"river/feeds"
	"river/urls"

	"github.com/cqroot/prompt"
	"github.com/urfave/cli/v2"
)

func feedsCmd() *cli.Command {
	return &cli.Command{
		Name:  "feeds",
		Usage: "Manage feed subscriptions",
		Flags: []cli.Flag{
			databaseFlag(),
		},
		Subcommands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List subscribed feeds and their health",
				ArgsUsage: " ",
				Action: func(ctx *cli.Context) error {
					database, err := openDatabase(ctx.Context, ctx.String("database"))
					if err != nil {
						return err
					}
					defer database.Close()

					all, err := database.ListFeeds(ctx.Context)
					if err != nil {
						return err
					}

					w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tTITLE\tURL\tSTATUS\tFAILURES")
					for _, feed := range all {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", feed.Id, feed.Title, feed.NormalizedUrl, feed.Status, feed.ConsecutiveFailures)
					}
					return w.Flush()
				},
			},
			{
				Name:      "add",
				Usage:     "Subscribe to a feed",
				ArgsUsage: "<url>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "title",
						Aliases: []string{"t"},
						Usage:   "Display title, defaults to the feed URL",
					},
				},
				Action: func(ctx *cli.Context) error {
					if ctx.NArg() != 1 {
						return errors.New("expected exactly one feed url")
					}

					database, err := openDatabase(ctx.Context, ctx.String("database"))
					if err != nil {
						return err
					}
					defer database.Close()

					feed, err := feeds.Subscribe(ctx.Context, database, ctx.Args().First(), ctx.String("title"))
					switch {
					case errors.Is(err, urls.ErrInvalidURL):
						return fmt.Errorf("invalid feed url %q", ctx.Args().First())
					case errors.Is(err, db.ErrDuplicateFeed):
						return errors.New("feed url already exists")
					case err != nil:
						return err
					}

					fmt.Printf("Subscribed %s (%s)\n", feed.NormalizedUrl, feed.Id)
					return nil
				},
			},
			{
				Name:      "remove",
				Usage:     "Unsubscribe from a feed and delete items only it reported",
				ArgsUsage: "<id or url>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Do not ask for confirmation",
					},
				},
				Action: func(ctx *cli.Context) error {
					if ctx.NArg() != 1 {
						return errors.New("expected exactly one feed id or url")
					}

					database, err := openDatabase(ctx.Context, ctx.String("database"))
					if err != nil {
						return err
					}
					defer database.Close()

					feed, err := feeds.Find(ctx.Context, database, ctx.Args().First())
					if errors.Is(err, db.ErrNotFound) {
						return errors.New("feed not found")
					}
					if err != nil {
						return err
					}

					if !ctx.Bool("yes") {
						answer, err := prompt.New().Ask(fmt.Sprintf("Remove %s? (yes/no)", feed.NormalizedUrl)).Input("no")
						if err != nil {
							return err
						}
						if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
							fmt.Println("Aborted")
							return nil
						}
					}

					if err := feeds.Unsubscribe(ctx.Context, database, feed.Id); err != nil {
						return err
					}
					fmt.Printf("Removed %s\n", feed.NormalizedUrl)
					return nil
				},
			},
		},
	}
}
