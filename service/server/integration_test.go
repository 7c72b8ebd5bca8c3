package server_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/reclaim/client"
	"github.com/brojonat/reclaim/service/config"
	"github.com/brojonat/reclaim/service/metrics"
	"github.com/brojonat/reclaim/service/nats"
	"github.com/brojonat/reclaim/service/redemption"
	"github.com/brojonat/reclaim/service/server"
	"github.com/brojonat/reclaim/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain is an in-memory stand-in for the RPC node.
type chain struct {
	mu        sync.Mutex
	wallet    solanago.PublicKey
	accounts  map[solanago.PublicKey]*solana.AccountState
	order     []solanago.PublicKey
	blockhash *solana.Blockhash
	sendErr   error
	status    *solana.SignatureStatus
}

func newChain(wallet solanago.PublicKey) *chain {
	return &chain{
		wallet:   wallet,
		accounts: map[solanago.PublicKey]*solana.AccountState{},
		blockhash: &solana.Blockhash{
			Hash:                 solanago.HashFromBytes(solanago.NewWallet().PublicKey().Bytes()),
			LastValidBlockHeight: 1000,
		},
		status: &solana.SignatureStatus{Slot: 1, ConfirmationStatus: "finalized"},
	}
}

func (c *chain) addTokenAccount(lamports, amount uint64) solanago.PublicKey {
	addr := solanago.NewWallet().PublicKey()
	c.accounts[addr] = &solana.AccountState{
		Address:  addr,
		Lamports: lamports,
		Program:  solana.TokenProgramID,
		Token: &solana.TokenAccount{
			Address:  addr,
			Owner:    c.wallet,
			Mint:     solanago.NewWallet().PublicKey(),
			Amount:   amount,
			Lamports: lamports,
		},
	}
	c.order = append(c.order, addr)
	return addr
}

func (c *chain) TokenAccountsByOwner(ctx context.Context, owner solanago.PublicKey) ([]*solana.TokenAccount, error) {
	var out []*solana.TokenAccount
	for _, a := range c.order {
		if c.accounts[a].Token.Owner.Equals(owner) {
			out = append(out, c.accounts[a].Token)
		}
	}
	return out, nil
}

func (c *chain) Accounts(ctx context.Context, addresses []solanago.PublicKey) ([]*solana.AccountState, error) {
	out := make([]*solana.AccountState, len(addresses))
	for i, a := range addresses {
		out[i] = c.accounts[a]
	}
	return out, nil
}

func (c *chain) LatestBlockhash(ctx context.Context) (*solana.Blockhash, error) {
	return c.blockhash, nil
}

func (c *chain) SendRawTransaction(ctx context.Context, raw []byte) (solanago.Signature, error) {
	c.mu.Lock()
	sendErr := c.sendErr
	c.mu.Unlock()
	if sendErr != nil {
		return solanago.Signature{}, sendErr
	}
	tx, err := redemption.DecodeTransaction(raw)
	if err != nil {
		return solanago.Signature{}, err
	}
	return tx.Signatures[0], nil
}

func (c *chain) SignatureStatus(ctx context.Context, sig solanago.Signature) (*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, nil
}

func (c *chain) reject(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *chain) setStatus(st *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = st
}

type harness struct {
	wallet    *solanago.Wallet
	operator  solanago.PublicKey
	chain     *chain
	publisher *nats.MockPublisher
	client    *client.Client
	url       string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &harness{
		wallet:    solanago.NewWallet(),
		operator:  solanago.NewWallet().PublicKey(),
		publisher: nats.NewMockPublisher(),
	}
	h.chain = newChain(h.wallet.PublicKey())

	cfg := &config.Config{
		OperatorWallet:      h.operator,
		FeeBasisPoints:      100,
		MaxSelectedAccounts: 20,
		ConfirmTimeout:      100 * time.Millisecond,
		ConfirmPollInterval: 5 * time.Millisecond,
	}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	svc := redemption.NewService(h.chain, redemption.Config{
		Operator:            cfg.OperatorWallet,
		FeeBasisPoints:      uint64(cfg.FeeBasisPoints),
		MaxSelectedAccounts: cfg.MaxSelectedAccounts,
		ConfirmTimeout:      cfg.ConfirmTimeout,
		ConfirmPollInterval: cfg.ConfirmPollInterval,
	}, m, logger)

	srv := server.New(":0", cfg, svc, h.publisher, m, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	h.url = ts.URL
	h.client = client.NewClient(ts.URL, nil, nil)
	return h
}

func (h *harness) sign(t *testing.T, encoded string) []byte {
	t.Helper()
	tx, err := redemption.DecodeEnvelope(encoded)
	require.NoError(t, err)
	tx.Signatures = nil
	_, err = tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(h.wallet.PublicKey()) {
			return &h.wallet.PrivateKey
		}
		return nil
	})
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

// Three abandoned accounts of 0.00203928 SOL each are redeemed in one transaction.
func TestRedemptionFlow_ThreeAccounts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		h.chain.addTokenAccount(2039280, 0)
	}
	h.chain.addTokenAccount(2039280, 500) // still holds tokens

	found, err := h.client.GetTokenAccounts(ctx, h.wallet.PublicKey().String())
	require.NoError(t, err)
	require.Len(t, found, 3)

	selected := make([]string, len(found))
	for i, a := range found {
		selected[i] = a.Pubkey
		assert.Equal(t, uint64(2039280), a.RentLamports)
	}

	env, err := h.client.Redeem(ctx, h.wallet.PublicKey().String(), selected)
	require.NoError(t, err)
	assert.Equal(t, uint64(6117840), env.TotalReclaimableLamports)
	assert.Equal(t, uint64(61178), env.ServiceFeeLamports)
	assert.Equal(t, h.chain.blockhash.Hash.String(), env.RecentBlockhash)

	tx, err := redemption.DecodeEnvelope(env.Transaction)
	require.NoError(t, err)
	summary, err := redemption.Summarize(tx)
	require.NoError(t, err)
	assert.Len(t, summary.Instructions, 4)
	assert.Equal(t, h.operator, summary.FeeRecipient)
	assert.Equal(t, uint64(61178), summary.FeeLamports)

	result, err := h.client.SubmitTransaction(ctx, h.sign(t, env.Transaction))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "finalized", result.Status)
	assert.Equal(t, tx.Message.AccountKeys[0], h.wallet.PublicKey())

	events := h.publisher.GetPublishedEventsForWallet(h.wallet.PublicKey().String())
	require.Len(t, events, 2)
	assert.Equal(t, nats.StagePrepared, events[0].Stage)
	assert.Equal(t, nats.StageSubmitted, events[1].Stage)
	assert.Equal(t, result.TxID, events[1].TxID)
}

func TestRedemptionFlow_EmptySelection(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.Redeem(context.Background(), h.wallet.PublicKey().String(), []string{})
	require.Error(t, err)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid input data.", apiErr.Message)
}

func TestRedemptionFlow_ExpiredBlockhash(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := h.chain.addTokenAccount(2039280, 0)

	env, err := h.client.Redeem(ctx, h.wallet.PublicKey().String(), []string{acct.String()})
	require.NoError(t, err)
	signed := h.sign(t, env.Transaction)

	h.chain.reject(&solana.RejectedError{Code: -32002, Message: "Transaction simulation failed: Blockhash not found"})

	for i := 0; i < 2; i++ {
		_, err = h.client.SubmitTransaction(ctx, signed)
		require.Error(t, err)

		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		assert.Equal(t, "Transaction simulation failed: Blockhash not found", apiErr.Message)
	}
}

func TestRedemptionFlow_FailedOnChain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := h.chain.addTokenAccount(2039280, 0)

	env, err := h.client.Redeem(ctx, h.wallet.PublicKey().String(), []string{acct.String()})
	require.NoError(t, err)

	h.chain.setStatus(&solana.SignatureStatus{
		Slot:               7,
		ConfirmationStatus: "confirmed",
		Err:                map[string]interface{}{"InstructionError": []interface{}{0, "InvalidAccountData"}},
	})

	result, err := h.client.SubmitTransaction(ctx, h.sign(t, env.Transaction))
	require.NoError(t, err, "execution failure is not a transport error")
	assert.False(t, result.Success)
	assert.Equal(t, "failed", result.Status)
	assert.NotEmpty(t, result.TxID)
	assert.Contains(t, result.Error, "InvalidAccountData")
}

func TestRedemptionFlow_Pending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := h.chain.addTokenAccount(2039280, 0)

	env, err := h.client.Redeem(ctx, h.wallet.PublicKey().String(), []string{acct.String()})
	require.NoError(t, err)

	h.chain.setStatus(nil)

	result, err := h.client.SubmitTransaction(ctx, h.sign(t, env.Transaction))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "pending", result.Status)
	assert.NotEmpty(t, result.TxID)
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t)
	assert.NoError(t, h.client.Health(context.Background()))

	resp, err := http.Get(h.url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
