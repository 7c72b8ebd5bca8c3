package main

import (
	"context"
	"fmt"

	"github.com/brojonat/reclaim/client"
	"github.com/brojonat/reclaim/service/redemption"
	"github.com/urfave/cli/v2"
)

func accountsCommand() *cli.Command {
	return &cli.Command{
		Name:      "accounts",
		Aliases:   []string{"discover", "ls"},
		Usage:     "List a wallet's abandoned token accounts",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}
			wallet := c.Args().Get(0)

			accounts, err := newClient(c).GetTokenAccounts(context.Background(), wallet)
			if err != nil {
				return fmt.Errorf("failed to list token accounts: %w", err)
			}

			if jsonOutput(c) {
				return printJSON(c, accounts)
			}
			printAccounts(c, wallet, accounts)
			return nil
		},
	}
}

func printAccounts(c *cli.Context, wallet string, accounts []client.AbandonedAccount) {
	w := c.App.Writer
	if len(accounts) == 0 {
		fmt.Fprintf(w, "No abandoned token accounts for %s\n", wallet)
		return
	}

	var total uint64
	fmt.Fprintf(w, "%-44s  %-44s  %14s\n", "ACCOUNT", "MINT", "RENT (SOL)")
	for _, a := range accounts {
		fmt.Fprintf(w, "%-44s  %-44s  %14.9f\n", a.Pubkey, a.Mint, redemption.LamportsToSOL(a.RentLamports))
		total += a.RentLamports
	}
	fmt.Fprintf(w, "\n%d account(s), %.9f SOL reclaimable\n", len(accounts), redemption.LamportsToSOL(total))
}
