package redemption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/reclaim/service/metrics"
	"github.com/brojonat/reclaim/service/solana"
	"github.com/bytedance/sonic"
	solanago "github.com/gagliardetto/solana-go"
)

const (
	DefaultConfirmTimeout      = 90 * time.Second
	DefaultConfirmPollInterval = 2 * time.Second
)

// Status is the confirmation state of a submitted transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFinalized Status = "finalized"
	StatusFailed    Status = "failed"
)

// SubmissionResult is the outcome of a broadcast transaction. Status is
// StatusFinalized or StatusFailed; a transaction whose outcome is unknown is
// reported as a KindConfirmationTimeout error instead.
type SubmissionResult struct {
	TxID     string
	Status   Status
	Detail   string // execution error reported by the network, for StatusFailed
	FeePayer solanago.PublicKey
}

// Coordinator relays signed transactions and waits for them to finalize.
// It never resubmits.
type Coordinator struct {
	network      Network
	timeout      time.Duration
	pollInterval time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewCoordinator creates a Coordinator. Non-positive durations fall back to the defaults.
func NewCoordinator(network Network, timeout, pollInterval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	if pollInterval <= 0 {
		pollInterval = DefaultConfirmPollInterval
	}
	return &Coordinator{
		network:      network,
		timeout:      timeout,
		pollInterval: pollInterval,
		metrics:      m,
		logger:       logger,
	}
}

// Submit verifies and broadcasts a fully signed transaction, then waits until it is
// finalized, fails on chain, or the confirmation timeout elapses. Cancelling ctx stops
// the wait but cannot recall a broadcast transaction.
func (c *Coordinator) Submit(ctx context.Context, raw []byte) (*SubmissionResult, error) {
	if len(raw) == 0 {
		return nil, invalidInput("signed transaction is required")
	}

	tx, err := DecodeTransaction(raw)
	if err != nil {
		c.record("invalid")
		return nil, err
	}
	if len(tx.Signatures) == 0 || len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) {
		c.record("rejected")
		return nil, &Error{
			Kind: KindSubmissionRejected,
			Msg:  fmt.Sprintf("transaction has %d of %d required signatures", len(tx.Signatures), tx.Message.Header.NumRequiredSignatures),
		}
	}
	if err := tx.VerifySignatures(); err != nil {
		c.record("rejected")
		return nil, &Error{Kind: KindSubmissionRejected, Msg: "signature verification failed", Err: err}
	}

	feePayer := tx.Message.AccountKeys[0]
	sig, err := c.network.SendRawTransaction(ctx, raw)
	if err != nil {
		var rejected *solana.RejectedError
		if errors.As(err, &rejected) {
			c.record("rejected")
			c.logger.WarnContext(ctx, "transaction rejected",
				"fee_payer", feePayer.String(),
				"code", rejected.Code,
				"reason", rejected.Message,
			)
			return nil, &Error{Kind: KindSubmissionRejected, Msg: rejected.Message, Err: err}
		}
		c.record("error")
		return nil, upstream("failed to broadcast transaction", err)
	}

	txid := sig.String()
	c.logger.InfoContext(ctx, "transaction broadcast",
		"txid", txid,
		"fee_payer", feePayer.String(),
	)

	result, err := c.awaitFinality(ctx, sig)
	if err != nil {
		return nil, err
	}
	result.FeePayer = feePayer
	return result, nil
}

// awaitFinality polls the signature status until it reaches a terminal state.
// Poll errors are logged and retried until the deadline.
func (c *Coordinator) awaitFinality(ctx context.Context, sig solanago.Signature) (*SubmissionResult, error) {
	txid := sig.String()
	start := time.Now()

	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		st, err := c.network.SignatureStatus(waitCtx, sig)
		switch {
		case err != nil:
			c.logger.DebugContext(ctx, "signature status poll failed", "txid", txid, "error", err)
		case st == nil:
			// not yet visible to the node
		case st.Err != nil:
			detail := formatExecutionError(st.Err)
			c.observe("failed_on_chain", start)
			c.logger.WarnContext(ctx, "transaction failed on chain",
				"txid", txid,
				"slot", st.Slot,
				"detail", detail,
			)
			return &SubmissionResult{TxID: txid, Status: StatusFailed, Detail: detail}, nil
		case st.Finalized():
			c.observe("finalized", start)
			c.logger.InfoContext(ctx, "transaction finalized", "txid", txid, "slot", st.Slot)
			return &SubmissionResult{TxID: txid, Status: StatusFinalized}, nil
		}

		select {
		case <-waitCtx.Done():
			c.observe("timeout", start)
			c.logger.WarnContext(ctx, "confirmation not observed",
				"txid", txid,
				"waited", time.Since(start).String(),
				"error", waitCtx.Err(),
			)
			return nil, &Error{
				Kind: KindConfirmationTimeout,
				Msg:  "transaction outcome unknown",
				TxID: txid,
				Err:  waitCtx.Err(),
			}
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) record(outcome string) {
	if c.metrics != nil {
		c.metrics.RecordSubmission(outcome)
	}
}

func (c *Coordinator) observe(outcome string, start time.Time) {
	c.record(outcome)
	if c.metrics != nil {
		c.metrics.RecordConfirmationWait(outcome, time.Since(start).Seconds())
	}
}

// formatExecutionError renders the node's error object, e.g.
// {"InstructionError":[0,"InvalidAccountData"]}.
func formatExecutionError(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	out, err := sonic.MarshalString(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return out
}
