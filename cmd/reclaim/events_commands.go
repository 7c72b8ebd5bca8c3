package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/reclaim/service/nats"
	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v2"
)

// eventsCommand streams redemption events published by the server.
func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:      "events",
		Usage:     "Stream redemption events from NATS",
		ArgsUsage: "[wallet_address]",
		Description: `Subscribe to redemption events published by the server.

Events are published to the subject: reclaim.redemptions.{wallet_address}
Without a wallet, events for every wallet are shown.

Example:
  reclaim events DYw8jCTfwHNRJhhmFcbXvVDTqWMEVFBX6ZKUmG5CNSKK --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Exit after this many events (0 = unlimited)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Exit after this long (0 = wait until interrupted)",
			},
		},
		Action: func(c *cli.Context) error {
			subject := natspkg.SubjectPrefix + ".>"
			if c.NArg() > 0 {
				subject = natspkg.Subject(c.Args().Get(0))
			}

			nc, err := nats.Connect(c.String("nats-url"), nats.Name("reclaim-cli"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			msgs := make(chan *nats.Msg, 64)
			sub, err := nc.ChanSubscribe(subject, msgs)
			if err != nil {
				return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
			}
			defer sub.Unsubscribe()

			if !jsonOutput(c) {
				fmt.Fprintf(c.App.ErrWriter, "📡 Subscribing to: %s\n", subject)
				fmt.Fprintf(c.App.ErrWriter, "\nWaiting for events... (Ctrl-C to exit)\n\n")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout := c.Duration("timeout"); timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			return streamEvents(ctx, c, msgs, c.Int("count"))
		},
	}
}

// streamEvents prints events from msgs until ctx is done or limit events were shown.
func streamEvents(ctx context.Context, c *cli.Context, msgs <-chan *nats.Msg, limit int) error {
	received := 0
	for {
		select {
		case msg := <-msgs:
			var event natspkg.RedemptionEvent
			if err := sonic.Unmarshal(msg.Data, &event); err != nil {
				fmt.Fprintf(c.App.ErrWriter, "Error parsing event on %s: %v\n", msg.Subject, err)
				continue
			}
			received++

			if jsonOutput(c) {
				if err := printJSON(c, event); err != nil {
					return err
				}
			} else {
				printEvent(c.App.Writer, &event)
			}

			if limit > 0 && received >= limit {
				return nil
			}

		case <-ctx.Done():
			if !jsonOutput(c) {
				fmt.Fprintf(c.App.ErrWriter, "\nReceived %d event(s)\n", received)
			}
			return nil
		}
	}
}

func printEvent(w io.Writer, e *natspkg.RedemptionEvent) {
	fmt.Fprintf(w, "[%s] %s %s\n", e.PublishedAt.Format(time.RFC3339), e.Stage, e.Wallet)
	switch e.Stage {
	case natspkg.StagePrepared:
		fmt.Fprintf(w, "   Accounts: %d\n", e.Accounts)
		fmt.Fprintf(w, "   Reclaimable: %d lamports, fee %d lamports\n", e.TotalLamports, e.FeeLamports)
		fmt.Fprintf(w, "   Blockhash: %s\n", e.Blockhash)
	case natspkg.StageSubmitted:
		if e.TxID != "" {
			fmt.Fprintf(w, "   Signature: %s\n", e.TxID)
		}
		fmt.Fprintf(w, "   Status: %s\n", e.Status)
		if e.Detail != "" {
			fmt.Fprintf(w, "   Detail: %s\n", e.Detail)
		}
	}
	fmt.Fprintln(w)
}
