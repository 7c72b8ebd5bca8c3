package redemption

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/brojonat/reclaim/service/solana"
	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

// fakeNetwork implements Network for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type fakeNetwork struct {
	mu sync.Mutex

	tokenAccounts []*solana.TokenAccount
	states        map[solanago.PublicKey]*solana.AccountState
	blockhash     *solana.Blockhash
	err           error // returned by every read

	sendErr   error
	statuses  []*solana.SignatureStatus // served in order, the last one repeats
	statusErr error

	sent       [][]byte
	statusPoll int
}

func (f *fakeNetwork) TokenAccountsByOwner(ctx context.Context, owner solanago.PublicKey) ([]*solana.TokenAccount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tokenAccounts, nil
}

func (f *fakeNetwork) Accounts(ctx context.Context, addresses []solanago.PublicKey) ([]*solana.AccountState, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*solana.AccountState, len(addresses))
	for i, a := range addresses {
		out[i] = f.states[a]
	}
	return out, nil
}

func (f *fakeNetwork) LatestBlockhash(ctx context.Context) (*solana.Blockhash, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.blockhash, nil
}

func (f *fakeNetwork) SendRawTransaction(ctx context.Context, raw []byte) (solanago.Signature, error) {
	f.mu.Lock()
	f.sent = append(f.sent, raw)
	f.mu.Unlock()
	if f.sendErr != nil {
		return solanago.Signature{}, f.sendErr
	}
	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return solanago.Signature{}, err
	}
	return tx.Signatures[0], nil
}

func (f *fakeNetwork) SignatureStatus(ctx context.Context, sig solanago.Signature) (*solana.SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if len(f.statuses) == 0 {
		return nil, nil
	}
	i := min(f.statusPoll, len(f.statuses)-1)
	f.statusPoll++
	return f.statuses[i], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBlockhash() *solana.Blockhash {
	return &solana.Blockhash{
		Hash:                 solanago.HashFromBytes(solanago.NewWallet().PublicKey().Bytes()),
		LastValidBlockHeight: 300_000_150,
	}
}

// tokenState is an empty SPL token account owned by wallet.
func tokenState(address, wallet solanago.PublicKey, lamports, amount uint64) *solana.AccountState {
	return &solana.AccountState{
		Address:  address,
		Lamports: lamports,
		Program:  solana.TokenProgramID,
		Token: &solana.TokenAccount{
			Address:  address,
			Owner:    wallet,
			Mint:     solanago.NewWallet().PublicKey(),
			Amount:   amount,
			Lamports: lamports,
		},
	}
}

// signEnvelope plays the external wallet: decode, sign, re-serialize.
func signEnvelope(t *testing.T, encoded string, signer *solanago.Wallet) []byte {
	t.Helper()
	tx, err := DecodeEnvelope(encoded)
	require.NoError(t, err)

	// Sign appends, so drop the empty placeholder slots first.
	tx.Signatures = nil
	_, err = tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(signer.PublicKey()) {
			return &signer.PrivateKey
		}
		return nil
	})
	require.NoError(t, err)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}
