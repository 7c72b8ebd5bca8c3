package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/reclaim/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// maxAccountsPerCall is the getMultipleAccounts limit enforced by RPC nodes.
const maxAccountsPerCall = 100

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetTokenAccountsByOwner(
		ctx context.Context,
		owner solana.PublicKey,
		conf *rpc.GetTokenAccountsConfig,
		opts *rpc.GetTokenAccountsOpts,
	) (*rpc.GetTokenAccountsResult, error)

	GetMultipleAccounts(
		ctx context.Context,
		accounts []solana.PublicKey,
		opts *rpc.GetMultipleAccountsOpts,
	) (*rpc.GetMultipleAccountsResult, error)

	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	SendRawTransaction(
		ctx context.Context,
		rawTx []byte,
		opts rpc.TransactionOpts,
	) (solana.Signature, error)

	GetSignatureStatuses(
		ctx context.Context,
		signatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)
}

// RejectedError is returned when the node answered a request with a JSON-RPC
// error object, as opposed to the request never reaching it.
type RejectedError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client provides the account, blockhash and broadcast operations used by the
// redemption flow. It wraps the RPC client with rate limiting, logging and metrics
// and is safe for concurrent use.
type Client struct {
	rpc      RPCClient
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g., "mainnet", rpc host)
}

// NewClient creates a new Solana client.
// requestsPerSecond bounds the rate of outgoing RPC calls; zero or less disables the limit.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, requestsPerSecond int, m *metrics.Metrics, logger *slog.Logger) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &Client{
		rpc:      rpcClient,
		limiter:  limiter,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

// call runs one RPC request under the rate limiter and records its outcome.
// Waiting for the limiter ends with ctx; a wait that cannot finish before the
// deadline fails immediately.
func (c *Client) call(ctx context.Context, method string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	waitStart := time.Now()
	err := c.limiter.Wait(ctx)
	if c.metrics != nil {
		c.metrics.RecordRateLimitWait(c.endpoint, time.Since(waitStart).Seconds())
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordRPCCall(method, "throttled", c.endpoint, 0)
		}
		return fmt.Errorf("rate limit wait for %s: %w", method, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err = fn()
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		c.logger.WarnContext(ctx, "rpc call failed",
			"method", method,
			"endpoint", c.endpoint,
			"error", err,
		)
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall(method, status, c.endpoint, duration)
	}
	return err
}

// TokenAccountsByOwner returns every SPL Token program account owned by the wallet.
// Accounts whose data cannot be decoded are skipped.
func (c *Client) TokenAccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]*TokenAccount, error) {
	programID := TokenProgramID
	var out *rpc.GetTokenAccountsResult
	err := c.call(ctx, "GetTokenAccountsByOwner", func() error {
		var err error
		out, err = c.rpc.GetTokenAccountsByOwner(ctx, owner,
			&rpc.GetTokenAccountsConfig{ProgramId: &programID},
			&rpc.GetTokenAccountsOpts{
				Commitment: rpc.CommitmentConfirmed,
				Encoding:   solana.EncodingBase64,
			},
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get token accounts for %s: %w", owner, err)
	}
	if out == nil {
		return []*TokenAccount{}, nil
	}

	accounts := make([]*TokenAccount, 0, len(out.Value))
	for _, keyed := range out.Value {
		if keyed == nil || keyed.Account.Data == nil {
			continue
		}
		acc, err := decodeTokenAccount(keyed.Pubkey, keyed.Account.Lamports, keyed.Account.Data.GetBinary())
		if err != nil {
			c.logger.WarnContext(ctx, "skipping undecodable token account",
				"account", keyed.Pubkey.String(),
				"error", err,
			)
			continue
		}
		accounts = append(accounts, acc)
	}

	c.logger.DebugContext(ctx, "fetched token accounts",
		"owner", owner.String(),
		"count", len(accounts),
	)
	return accounts, nil
}

// Accounts reads the current state of each address. The result has one entry per
// address in the same order; the entry is nil when the account does not exist.
// Addresses are fetched in chunks, concurrently.
func (c *Client) Accounts(ctx context.Context, addresses []solana.PublicKey) ([]*AccountState, error) {
	states := make([]*AccountState, len(addresses))

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(addresses); start += maxAccountsPerCall {
		end := min(start+maxAccountsPerCall, len(addresses))
		chunk := addresses[start:end]
		offset := start

		g.Go(func() error {
			var out *rpc.GetMultipleAccountsResult
			err := c.call(gctx, "GetMultipleAccounts", func() error {
				var err error
				out, err = c.rpc.GetMultipleAccounts(gctx, chunk, &rpc.GetMultipleAccountsOpts{
					Commitment: rpc.CommitmentConfirmed,
					Encoding:   solana.EncodingBase64,
				})
				return err
			})
			if err != nil {
				return fmt.Errorf("failed to get accounts: %w", err)
			}
			if out == nil || len(out.Value) != len(chunk) {
				return fmt.Errorf("unexpected getMultipleAccounts response for %d accounts", len(chunk))
			}

			for i, acc := range out.Value {
				if acc == nil {
					continue
				}
				state := &AccountState{
					Address:  chunk[i],
					Lamports: acc.Lamports,
					Program:  acc.Owner,
				}
				if acc.Owner.Equals(TokenProgramID) && acc.Data != nil {
					if tok, err := decodeTokenAccount(chunk[i], acc.Lamports, acc.Data.GetBinary()); err == nil {
						state.Token = tok
					}
				}
				states[offset+i] = state
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return states, nil
}

// LatestBlockhash returns a finalized blockhash for a new transaction.
func (c *Client) LatestBlockhash(ctx context.Context) (*Blockhash, error) {
	var out *rpc.GetLatestBlockhashResult
	err := c.call(ctx, "GetLatestBlockhash", func() error {
		var err error
		out, err = c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("failed to get latest blockhash: empty response")
	}

	return &Blockhash{
		Hash:                 out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// SendRawTransaction broadcasts a signed transaction with preflight checks enabled.
// If the node rejects the transaction the error is a *RejectedError.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	var sig solana.Signature
	err := c.call(ctx, "SendTransaction", func() error {
		var err error
		sig, err = c.rpc.SendRawTransaction(ctx, raw, rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: rpc.CommitmentFinalized,
		})
		return err
	})
	if err != nil {
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) {
			return solana.Signature{}, &RejectedError{
				Code:    rpcErr.Code,
				Message: rpcErr.Message,
				Data:    rpcErr.Data,
			}
		}
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	c.logger.DebugContext(ctx, "transaction broadcast", "signature", sig.String())
	return sig, nil
}

// SignatureStatus returns the status of a broadcast transaction, or nil if the
// network does not know the signature (yet).
func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	var out *rpc.GetSignatureStatusesResult
	err := c.call(ctx, "GetSignatureStatuses", func() error {
		var err error
		out, err = c.rpc.GetSignatureStatuses(ctx, sig)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return nil, nil
	}

	st := out.Value[0]
	return &SignatureStatus{
		Slot:               st.Slot,
		ConfirmationStatus: string(st.ConfirmationStatus),
		Err:                st.Err,
	}, nil
}
