package solana

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

// Well-known Solana program IDs
var (
	// SystemProgramID is the native SOL transfer program
	SystemProgramID = solana.SystemProgramID

	// TokenProgramID is the SPL Token program
	TokenProgramID = solana.TokenProgramID
)

// TokenAccountSize is the length of an SPL token account's data.
const TokenAccountSize = 165

// System Program instruction types
const (
	SystemProgramTransferInstruction = uint32(2)
)

// Token Program instruction types
const (
	TokenProgramCloseAccountInstruction = uint8(9)
)

// Instruction kinds reported by ParseInstruction.
const (
	InstructionCloseAccount = "close_account"
	InstructionTransfer     = "transfer"
	InstructionUnknown      = "unknown"
)

// ParsedInstruction is a decoded view of a compiled instruction.
type ParsedInstruction struct {
	Kind     string
	Program  solana.PublicKey
	Accounts []solana.PublicKey
	Lamports uint64 // set for transfers
}

// decodeTokenAccount decodes the binary layout of an SPL token account.
func decodeTokenAccount(address solana.PublicKey, lamports uint64, data []byte) (*TokenAccount, error) {
	if len(data) < TokenAccountSize {
		return nil, fmt.Errorf("token account data too short: %d bytes", len(data))
	}

	var acc token.Account
	if err := bin.NewBinDecoder(data).Decode(&acc); err != nil {
		return nil, fmt.Errorf("failed to decode token account: %w", err)
	}

	return &TokenAccount{
		Address:        address,
		Owner:          acc.Owner,
		Mint:           acc.Mint,
		Amount:         acc.Amount,
		Lamports:       lamports,
		Frozen:         acc.State == token.Frozen,
		CloseAuthority: acc.CloseAuthority,
	}, nil
}

// ParseInstruction decodes the close-account and transfer instructions we emit.
// Anything else is reported with Kind InstructionUnknown.
func ParseInstruction(instruction solana.CompiledInstruction, accountKeys []solana.PublicKey) (*ParsedInstruction, error) {
	if int(instruction.ProgramIDIndex) >= len(accountKeys) {
		return nil, fmt.Errorf("program index %d out of bounds", instruction.ProgramIDIndex)
	}

	parsed := &ParsedInstruction{
		Kind:    InstructionUnknown,
		Program: accountKeys[instruction.ProgramIDIndex],
	}
	for _, idx := range instruction.Accounts {
		if int(idx) >= len(accountKeys) {
			return nil, fmt.Errorf("account index %d out of bounds", idx)
		}
		parsed.Accounts = append(parsed.Accounts, accountKeys[idx])
	}

	switch {
	case parsed.Program.Equals(SystemProgramID):
		// [0..4]  = instruction type (u32, 2 = Transfer)
		// [4..12] = lamports (u64)
		if len(instruction.Data) >= 12 && binary.LittleEndian.Uint32(instruction.Data[0:4]) == SystemProgramTransferInstruction {
			parsed.Kind = InstructionTransfer
			parsed.Lamports = binary.LittleEndian.Uint64(instruction.Data[4:12])
		}
	case parsed.Program.Equals(TokenProgramID):
		// CloseAccount accounts: [account, destination, owner]
		if len(instruction.Data) == 1 && instruction.Data[0] == TokenProgramCloseAccountInstruction {
			parsed.Kind = InstructionCloseAccount
		}
	}

	return parsed, nil
}
