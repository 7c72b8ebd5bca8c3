package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/brojonat/reclaim/service/redemption"
	"github.com/mr-tron/base58"
	"github.com/urfave/cli/v2"
)

func encodingFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "encoding",
		Aliases: []string{"e"},
		Usage:   "Input encoding: base64 or base58",
		Value:   "base64",
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Decode a redemption transaction and show what it does",
		ArgsUsage: "FILE (or - for stdin)",
		Flags:     []cli.Flag{encodingFlag()},
		Action: func(c *cli.Context) error {
			raw, err := readTransaction(c)
			if err != nil {
				return err
			}
			tx, err := redemption.DecodeTransaction(raw)
			if err != nil {
				return err
			}
			s, err := redemption.Summarize(tx)
			if err != nil {
				return err
			}

			if jsonOutput(c) {
				closed := make([]string, len(s.Closed))
				for i, a := range s.Closed {
					closed[i] = a.String()
				}
				signatures := make([]string, len(tx.Signatures))
				for i, sig := range tx.Signatures {
					signatures[i] = sig.String()
				}
				return printJSON(c, map[string]interface{}{
					"feePayer":        s.FeePayer.String(),
					"recentBlockhash": s.RecentBlockhash.String(),
					"closedAccounts":  closed,
					"destination":     s.Destination.String(),
					"feeRecipient":    s.FeeRecipient.String(),
					"feeLamports":     s.FeeLamports,
					"signed":          s.Signed,
					"signatures":      signatures,
				})
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Fee payer:     %s\n", s.FeePayer)
			fmt.Fprintf(w, "Blockhash:     %s\n", s.RecentBlockhash)
			fmt.Fprintf(w, "Closes:        %d account(s), deposits to %s\n", len(s.Closed), s.Destination)
			for _, a := range s.Closed {
				fmt.Fprintf(w, "  - %s\n", a)
			}
			fmt.Fprintf(w, "Fee:           %d lamports to %s\n", s.FeeLamports, s.FeeRecipient)
			fmt.Fprintf(w, "Signed:        %t\n", s.Signed)
			return nil
		},
	}
}

func submitCommand() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Submit a signed transaction and wait for its outcome",
		ArgsUsage: "FILE (or - for stdin)",
		Flags:     []cli.Flag{encodingFlag()},
		Action: func(c *cli.Context) error {
			raw, err := readTransaction(c)
			if err != nil {
				return err
			}

			result, err := newClient(c).SubmitTransaction(context.Background(), raw)
			if err != nil {
				return fmt.Errorf("failed to submit transaction: %w", err)
			}
			return reportResult(c, result)
		},
	}
}

// readTransaction reads an encoded transaction from the file named by the first
// argument, or from stdin when it is "-".
func readTransaction(c *cli.Context) ([]byte, error) {
	if c.NArg() < 1 {
		return nil, fmt.Errorf("transaction file is required")
	}

	var (
		data []byte
		err  error
	)
	if path := c.Args().Get(0); path == "-" {
		data, err = io.ReadAll(c.App.Reader)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction: %w", err)
	}

	return decodeTransaction(strings.TrimSpace(string(data)), c.String("encoding"))
}

func decodeTransaction(s, encoding string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("transaction is empty")
	}
	switch encoding {
	case "base64":
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 transaction: %w", err)
		}
		return raw, nil
	case "base58":
		raw, err := base58.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid base58 transaction: %w", err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}
