// Package main provides dseinctl, the operator CLI for a dsein data store.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "dseinctl: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "dseinctl"
	app.Usage = "Operate on a dsein data store"
	app.Action = cli.ShowAppHelp
	app.Flags = storeFlags()
	app.Commands = []*cli.Command{
		{
			Action:      purgeExpired,
			Name:        "purge-expired",
			Usage:       "Delete unused invites older than max-age",
			Category:    "Invites",
			Description: `Deletes available invites past their expiry. Used invites are kept. Quota is not refunded.`,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "referrer",
					Usage: "Only purge invites created by this user id (default: every user)",
				},
				&cli.DurationFlag{
					Name:  "max-age",
					Usage: "Age after which an unused invite is purged (default: configured invite expiry)",
				},
			},
		},
		{
			Action:      reconcile,
			Name:        "reconcile",
			Usage:       "Recompute follower/following counters from follow edges",
			Category:    "Graph",
			Description: `Scans every user and rewrites counters that drifted from the edges.`,
		},
		{
			Action:    resolve,
			Name:      "resolve",
			Usage:     "Print the user record for a username",
			ArgsUsage: "<username>",
			Category:  "Directory",
		},
		{
			Action:      inspect,
			Name:        "inspect",
			Usage:       "Print key counts per prefix of a Badger data directory",
			Category:    "Store",
			Description: `Opens the Badger database read-only. Stop the server first.`,
		},
	}
	return app
}

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "store",
			Usage:   "Storage backend: badger, sqlite or mongo",
			EnvVars: []string{"STORE_DRIVER"},
		},
		&cli.StringFlag{
			Name:    "data-path",
			Usage:   "Directory for local data",
			EnvVars: []string{"DATA_PATH"},
		},
		&cli.StringFlag{
			Name:    "mongo-uri",
			Usage:   "MongoDB connection string",
			EnvVars: []string{"MONGO_URI"},
		},
		&cli.StringFlag{
			Name:    "mongo-database",
			Usage:   "MongoDB database name",
			EnvVars: []string{"MONGO_DATABASE"},
		},
		&cli.StringFlag{
			Name:  "env-file",
			Usage: "Path to .env file",
			Value: ".env",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (debug, info, warn, error)",
			Value: "warn",
		},
	}
}
