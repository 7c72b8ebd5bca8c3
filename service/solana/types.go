package solana

import (
	"github.com/gagliardetto/solana-go"
)

// TokenAccount is an SPL token account as read from the network.
// This is our domain model, independent of the RPC response format.
type TokenAccount struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey // wallet that controls the token account
	Mint     solana.PublicKey
	Amount   uint64 // raw token units
	Lamports uint64 // native deposit held by the account
	Frozen   bool

	// CloseAuthority may close the account in place of the owner; nil when unset.
	CloseAuthority *solana.PublicKey
}

// CanClose reports whether wallet is allowed to close the account.
func (t *TokenAccount) CanClose(wallet solana.PublicKey) bool {
	if t.CloseAuthority != nil {
		return t.CloseAuthority.Equals(wallet)
	}
	return t.Owner.Equals(wallet)
}

// AccountState is the current on-chain state of an arbitrary account.
type AccountState struct {
	Address  solana.PublicKey
	Lamports uint64
	Program  solana.PublicKey // program that owns the account
	Token    *TokenAccount    // nil unless the data decodes as an SPL token account
}

// Blockhash is a recent blockhash and the last block height at which
// transactions referencing it are still accepted.
type Blockhash struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
}

// SignatureStatus is the network's view of a broadcast transaction.
type SignatureStatus struct {
	Slot               uint64
	ConfirmationStatus string      // "processed", "confirmed" or "finalized"
	Err                interface{} // non-nil if execution failed
}

// Finalized reports whether the transaction reached finalized commitment.
func (s *SignatureStatus) Finalized() bool {
	return s.ConfirmationStatus == "finalized"
}
