package main

import (
	"fmt"
	"strings"

	"github.com/brojonat/reclaim/client"
	"github.com/brojonat/reclaim/service/redemption"
	solanago "github.com/gagliardetto/solana-go"
)

// loadKeypair reads a keypair file in the solana-keygen JSON format.
func loadKeypair(path string) (solanago.PrivateKey, error) {
	key, err := solanago.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair %s: %w", path, err)
	}
	return key, nil
}

// checkEnvelope compares a decoded envelope against the request and the quote the
// server returned. The transaction must close exactly the requested accounts, in order.
// operator may be the zero key, in which case the fee recipient is not checked.
func checkEnvelope(s *redemption.Summary, env *client.Envelope, wallet, operator solanago.PublicKey, accounts []string) error {
	if len(s.Closed) != len(accounts) {
		return fmt.Errorf("transaction closes %d account(s), requested %d", len(s.Closed), len(accounts))
	}
	for i, a := range s.Closed {
		if a.String() != strings.TrimSpace(accounts[i]) {
			return fmt.Errorf("instruction %d closes %s, requested %s", i, a, accounts[i])
		}
	}
	if !s.FeePayer.Equals(wallet) {
		return fmt.Errorf("fee payer is %s, expected %s", s.FeePayer, wallet)
	}
	if !s.Destination.Equals(wallet) {
		return fmt.Errorf("deposits are sent to %s, expected %s", s.Destination, wallet)
	}
	if s.FeeLamports != env.ServiceFeeLamports {
		return fmt.Errorf("transaction pays a fee of %d lamports, quote was %d", s.FeeLamports, env.ServiceFeeLamports)
	}
	if operator != (solanago.PublicKey{}) && !s.FeeRecipient.Equals(operator) {
		return fmt.Errorf("fee is paid to %s, expected %s", s.FeeRecipient, operator)
	}
	if s.RecentBlockhash.String() != env.RecentBlockhash {
		return fmt.Errorf("transaction blockhash %s does not match quote %s", s.RecentBlockhash, env.RecentBlockhash)
	}
	return nil
}

// signTransaction signs tx with key and returns its wire form.
func signTransaction(tx *solanago.Transaction, key solanago.PrivateKey) ([]byte, error) {
	signer := key.PublicKey()

	// Placeholder slots from the envelope are replaced, not appended to.
	tx.Signatures = nil
	_, err := tx.Sign(func(pub solanago.PublicKey) *solanago.PrivateKey {
		if pub.Equals(signer) {
			return &key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx.MarshalBinary()
}
