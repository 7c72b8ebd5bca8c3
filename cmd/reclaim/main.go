package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "reclaim",
		Usage: "Reclaim rent deposits from abandoned Solana token accounts",
		Description: `A command-line client for the reclaim redemption service.

List a wallet's empty token accounts, request an unsigned redemption transaction,
inspect it, and sign and submit it with a local keypair.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			accountsCommand(),
			redeemCommand(),
			inspectCommand(),
			submitCommand(),
			eventsCommand(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: globalFlags(),
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server-url",
			Aliases: []string{"s"},
			Usage:   "Redemption service URL",
			EnvVars: []string{"RECLAIM_SERVER_URL", "SERVER_URL"},
			Value:   "http://localhost:8080",
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Output in JSON format",
		},
		&cli.StringFlag{
			Name:  "jq",
			Usage: "jq expression applied to JSON output (implies --json)",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log client requests to stderr",
		},
	}
}
