package redemption

import (
	"context"

	"github.com/brojonat/reclaim/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

// Network is the subset of the Solana client the redemption flow depends on.
// *solana.Client satisfies it.
type Network interface {
	TokenAccountsByOwner(ctx context.Context, owner solanago.PublicKey) ([]*solana.TokenAccount, error)
	Accounts(ctx context.Context, addresses []solanago.PublicKey) ([]*solana.AccountState, error)
	LatestBlockhash(ctx context.Context) (*solana.Blockhash, error)
	SendRawTransaction(ctx context.Context, raw []byte) (solanago.Signature, error)
	SignatureStatus(ctx context.Context, sig solanago.Signature) (*solana.SignatureStatus, error)
}

var _ Network = (*solana.Client)(nil)
