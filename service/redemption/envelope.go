package redemption

import (
	"encoding/base64"
	"fmt"

	"github.com/brojonat/reclaim/service/solana"
	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
)

// EncodeTransaction serializes tx in wire format and base64-encodes it. An unsigned
// transaction gets one zeroed signature slot per required signer, which is the shape
// wallet signers expect.
func EncodeTransaction(tx *solanago.Transaction) (string, error) {
	raw, err := MarshalTransaction(tx)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// MarshalTransaction is EncodeTransaction without the text encoding.
func MarshalTransaction(tx *solanago.Transaction) ([]byte, error) {
	out := *tx
	if len(out.Signatures) == 0 {
		out.Signatures = make([]solanago.Signature, tx.Message.Header.NumRequiredSignatures)
	}
	raw, err := out.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return raw, nil
}

// DecodeTransaction parses a wire-format transaction.
func DecodeTransaction(raw []byte) (*solanago.Transaction, error) {
	if len(raw) == 0 {
		return nil, invalidInput("transaction payload is empty")
	}
	dec := bin.NewBinDecoder(raw)
	tx, err := solanago.TransactionFromDecoder(dec)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Msg: "transaction payload could not be decoded", Err: err}
	}
	if dec.Remaining() != 0 {
		return nil, invalidInput("transaction payload has %d trailing bytes", dec.Remaining())
	}
	return tx, nil
}

// DecodeEnvelope parses a base64 envelope as produced by EncodeTransaction.
func DecodeEnvelope(encoded string) (*solanago.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Msg: "envelope is not valid base64", Err: err}
	}
	return DecodeTransaction(raw)
}

// Summary is a decoded description of a redemption transaction.
type Summary struct {
	FeePayer        solanago.PublicKey
	RecentBlockhash solanago.Hash
	Closed          []solanago.PublicKey // accounts closed, in instruction order
	Destination     solanago.PublicKey   // receives the released deposits
	FeeRecipient    solanago.PublicKey
	FeeLamports     uint64
	Instructions    []*solana.ParsedInstruction
	Signed          bool // every required signature slot is non-zero
}

// Summarize decodes the instructions of tx. It fails unless tx has the redemption
// shape: one or more close-account instructions followed by exactly one transfer.
func Summarize(tx *solanago.Transaction) (*Summary, error) {
	msg := tx.Message
	if len(msg.AccountKeys) == 0 {
		return nil, invalidInput("transaction has no account keys")
	}

	s := &Summary{
		FeePayer:        msg.AccountKeys[0],
		RecentBlockhash: msg.RecentBlockhash,
		Signed:          len(tx.Signatures) == int(msg.Header.NumRequiredSignatures),
	}
	for _, sig := range tx.Signatures {
		if sig == (solanago.Signature{}) {
			s.Signed = false
		}
	}

	for i, ci := range msg.Instructions {
		parsed, err := solana.ParseInstruction(ci, msg.AccountKeys)
		if err != nil {
			return nil, &Error{Kind: KindInvalidInput, Msg: fmt.Sprintf("instruction %d", i), Err: err}
		}
		s.Instructions = append(s.Instructions, parsed)
	}

	n := len(s.Instructions)
	if n < 2 {
		return nil, invalidInput("expected at least 2 instructions, got %d", n)
	}
	for i, ix := range s.Instructions[:n-1] {
		if ix.Kind != solana.InstructionCloseAccount || len(ix.Accounts) < 2 {
			return nil, invalidInput("instruction %d is %s, expected %s", i, ix.Kind, solana.InstructionCloseAccount)
		}
		if i == 0 {
			s.Destination = ix.Accounts[1]
		} else if !ix.Accounts[1].Equals(s.Destination) {
			return nil, invalidInput("instruction %d sends deposit to a different destination", i)
		}
		s.Closed = append(s.Closed, ix.Accounts[0])
	}

	last := s.Instructions[n-1]
	if last.Kind != solana.InstructionTransfer || len(last.Accounts) < 2 {
		return nil, invalidInput("last instruction is %s, expected %s", last.Kind, solana.InstructionTransfer)
	}
	s.FeeRecipient = last.Accounts[1]
	s.FeeLamports = last.Lamports
	return s, nil
}
