package main

import (
	"context"
	"fmt"
	"os"

	"github.com/brojonat/reclaim/client"
	"github.com/brojonat/reclaim/service/redemption"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func redeemCommand() *cli.Command {
	return &cli.Command{
		Name:      "redeem",
		Usage:     "Build a redemption transaction, and sign and submit it when a keypair is given",
		ArgsUsage: "[TOKEN_ACCOUNT...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "keypair",
				Aliases: []string{"k"},
				Usage:   "solana-keygen keypair file used to sign and submit",
				EnvVars: []string{"RECLAIM_KEYPAIR"},
			},
			&cli.StringFlag{
				Name:    "wallet",
				Aliases: []string{"w"},
				Usage:   "Wallet address (defaults to the keypair's public key)",
			},
			&cli.BoolFlag{
				Name:    "all",
				Aliases: []string{"a"},
				Usage:   "Select every abandoned account of the wallet",
			},
			&cli.StringFlag{
				Name:    "operator",
				Usage:   "Expected fee recipient; the transaction is refused if it pays anyone else",
				EnvVars: []string{"RECLAIM_OPERATOR_WALLET"},
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Write the unsigned base64 transaction to this file",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			cl := newClient(c)

			var key solanago.PrivateKey
			if path := c.String("keypair"); path != "" {
				var err error
				if key, err = loadKeypair(path); err != nil {
					return err
				}
			}
			wallet, err := resolveWallet(c.String("wallet"), key)
			if err != nil {
				return err
			}

			var operator solanago.PublicKey
			if s := c.String("operator"); s != "" {
				if operator, err = solanago.PublicKeyFromBase58(s); err != nil {
					return fmt.Errorf("invalid operator address: %w", err)
				}
			}

			accounts := c.Args().Slice()
			if c.Bool("all") {
				found, err := cl.GetTokenAccounts(ctx, wallet.String())
				if err != nil {
					return fmt.Errorf("failed to list token accounts: %w", err)
				}
				accounts = accounts[:0]
				for _, a := range found {
					accounts = append(accounts, a.Pubkey)
				}
				if len(accounts) == 0 {
					fmt.Fprintf(c.App.Writer, "No abandoned token accounts for %s\n", wallet)
					return nil
				}
			}
			if len(accounts) == 0 {
				return fmt.Errorf("select at least one token account or use --all")
			}

			env, err := cl.Redeem(ctx, wallet.String(), accounts)
			if err != nil {
				return fmt.Errorf("failed to build redemption: %w", err)
			}

			tx, err := redemption.DecodeEnvelope(env.Transaction)
			if err != nil {
				return fmt.Errorf("server returned an unreadable transaction: %w", err)
			}
			summary, err := redemption.Summarize(tx)
			if err != nil {
				return fmt.Errorf("server returned an unexpected transaction: %w", err)
			}
			if err := checkEnvelope(summary, env, wallet, operator, accounts); err != nil {
				return fmt.Errorf("refusing transaction: %w", err)
			}

			if out := c.String("out"); out != "" {
				if err := os.WriteFile(out, []byte(env.Transaction+"\n"), 0o600); err != nil {
					return fmt.Errorf("failed to write %s: %w", out, err)
				}
			}

			if key == nil {
				if jsonOutput(c) {
					return printJSON(c, env)
				}
				printEnvelope(c, env, summary)
				return nil
			}

			if !jsonOutput(c) {
				printEnvelope(c, env, summary)
				fmt.Fprintln(c.App.ErrWriter, "Signing and submitting...")
			}

			signed, err := signTransaction(tx, key)
			if err != nil {
				return err
			}
			result, err := cl.SubmitTransaction(ctx, signed)
			if err != nil {
				return fmt.Errorf("failed to submit transaction: %w", err)
			}
			return reportResult(c, result)
		},
	}
}

// resolveWallet picks the wallet address from the flag or the keypair; both must agree.
func resolveWallet(flag string, key solanago.PrivateKey) (solanago.PublicKey, error) {
	if flag == "" {
		if key == nil {
			return solanago.PublicKey{}, fmt.Errorf("--wallet or --keypair is required")
		}
		return key.PublicKey(), nil
	}

	wallet, err := solanago.PublicKeyFromBase58(flag)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("invalid wallet address: %w", err)
	}
	if key != nil && !key.PublicKey().Equals(wallet) {
		return solanago.PublicKey{}, fmt.Errorf("keypair %s does not match wallet %s", key.PublicKey(), wallet)
	}
	return wallet, nil
}

func printEnvelope(c *cli.Context, env *client.Envelope, s *redemption.Summary) {
	w := c.App.Writer
	fmt.Fprintf(w, "Wallet:       %s\n", s.FeePayer)
	fmt.Fprintf(w, "Accounts:     %d\n", len(s.Closed))
	for _, a := range s.Closed {
		fmt.Fprintf(w, "  - %s\n", a)
	}
	fmt.Fprintf(w, "Reclaimable:  %.9f SOL (%d lamports)\n",
		redemption.LamportsToSOL(env.TotalReclaimableLamports), env.TotalReclaimableLamports)
	fmt.Fprintf(w, "Service fee:  %.9f SOL (%d lamports, %d bps) to %s\n",
		redemption.LamportsToSOL(env.ServiceFeeLamports), env.ServiceFeeLamports, env.FeeBasisPoints, s.FeeRecipient)
	fmt.Fprintf(w, "Blockhash:    %s (valid until block height %d)\n", env.RecentBlockhash, env.LastValidBlockHeight)
}

// reportResult prints a submission result. A transaction that failed on chain, or
// whose outcome is unknown, is reported with a non-zero exit code.
func reportResult(c *cli.Context, result *client.SubmitResult) error {
	if jsonOutput(c) {
		if err := printJSON(c, result); err != nil {
			return err
		}
	} else {
		w := c.App.Writer
		switch result.Status {
		case string(redemption.StatusFinalized):
			fmt.Fprintf(w, "✓ Transaction finalized\n")
		case string(redemption.StatusFailed):
			fmt.Fprintf(w, "✗ Transaction failed on chain: %s\n", result.Error)
		default:
			fmt.Fprintf(w, "? Transaction outcome unknown: %s\n", result.Error)
		}
		fmt.Fprintf(w, "  Signature: %s\n", result.TxID)
	}

	switch result.Status {
	case string(redemption.StatusFinalized):
		return nil
	case string(redemption.StatusFailed):
		return cli.Exit("", 1)
	default:
		return cli.Exit("", 2)
	}
}
