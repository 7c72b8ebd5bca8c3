package redemption

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brojonat/reclaim/service/metrics"
	"github.com/brojonat/reclaim/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// DefaultMaxSelectedAccounts keeps a redemption transaction under the packet size limit.
const DefaultMaxSelectedAccounts = 20

// RedemptionRequest is a validated client selection.
type RedemptionRequest struct {
	Wallet   solanago.PublicKey
	Accounts []solanago.PublicKey // client order, unique
}

// ParseRequest validates an untrusted selection. maxAccounts <= 0 disables the size check.
func ParseRequest(wallet string, accounts []string, maxAccounts int) (RedemptionRequest, error) {
	owner, err := ParseWallet(wallet)
	if err != nil {
		return RedemptionRequest{}, err
	}
	if len(accounts) == 0 {
		return RedemptionRequest{}, &Error{Kind: KindEmptySelection, Msg: "no accounts selected"}
	}
	if maxAccounts > 0 && len(accounts) > maxAccounts {
		return RedemptionRequest{}, invalidInput("too many accounts selected: %d (max %d)", len(accounts), maxAccounts)
	}

	req := RedemptionRequest{
		Wallet:   owner,
		Accounts: make([]solanago.PublicKey, 0, len(accounts)),
	}
	seen := make(map[solanago.PublicKey]struct{}, len(accounts))
	for _, a := range accounts {
		pk, err := solanago.PublicKeyFromBase58(strings.TrimSpace(a))
		if err != nil {
			return RedemptionRequest{}, &Error{Kind: KindInvalidInput, Msg: fmt.Sprintf("invalid account address %q", a), Err: err}
		}
		if _, dup := seen[pk]; dup {
			return RedemptionRequest{}, invalidInput("duplicate account address %s", pk)
		}
		seen[pk] = struct{}{}
		req.Accounts = append(req.Accounts, pk)
	}
	return req, nil
}

// Envelope is an unsigned redemption transaction ready for an external signer.
type Envelope struct {
	Transaction          *solanago.Transaction
	Encoded              string // base64 wire format with empty signature slots
	Quote                FeeQuote
	RecentBlockhash      solanago.Hash
	LastValidBlockHeight uint64
	FeePayer             solanago.PublicKey
	Records              []TokenAccountRecord
}

// Builder assembles redemption transactions from freshly read account state.
type Builder struct {
	network  Network
	fees     FeeCalculator
	operator solanago.PublicKey
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewBuilder creates a Builder that pays fees to operator.
func NewBuilder(network Network, operator solanago.PublicKey, fees FeeCalculator, m *metrics.Metrics, logger *slog.Logger) *Builder {
	return &Builder{
		network:  network,
		fees:     fees,
		operator: operator,
		metrics:  m,
		logger:   logger,
	}
}

// Build re-reads every selected account, computes the fee from the on-chain deposits and
// returns an envelope that closes the accounts in request order and then transfers the fee
// from the wallet to the operator.
func (b *Builder) Build(ctx context.Context, req RedemptionRequest, blockhash *solana.Blockhash) (*Envelope, error) {
	env, err := b.build(ctx, req, blockhash)
	if b.metrics != nil {
		if err != nil {
			b.metrics.RecordEnvelopeBuilt(KindOf(err).String(), 0)
		} else {
			b.metrics.RecordEnvelopeBuilt("success", env.Quote.FeeLamports)
		}
	}
	return env, err
}

func (b *Builder) build(ctx context.Context, req RedemptionRequest, blockhash *solana.Blockhash) (*Envelope, error) {
	if len(req.Accounts) == 0 {
		return nil, &Error{Kind: KindEmptySelection, Msg: "no accounts selected"}
	}
	if blockhash == nil {
		return nil, fmt.Errorf("blockhash is required")
	}

	records, err := b.readRecords(ctx, req)
	if err != nil {
		return nil, err
	}

	quote, err := b.fees.ComputeFee(records)
	if err != nil {
		return nil, err
	}

	instructions := make([]solanago.Instruction, 0, len(records)+1)
	for _, r := range records {
		instructions = append(instructions, token.NewCloseAccountInstruction(
			r.Address,
			req.Wallet,
			req.Wallet,
			[]solanago.PublicKey{},
		).Build())
	}
	// The transfer is funded by the deposits released above, so it must come last.
	instructions = append(instructions, system.NewTransferInstruction(
		quote.FeeLamports,
		req.Wallet,
		b.operator,
	).Build())

	tx, err := solanago.NewTransaction(instructions, blockhash.Hash, solanago.TransactionPayer(req.Wallet))
	if err != nil {
		return nil, fmt.Errorf("failed to assemble transaction: %w", err)
	}

	encoded, err := EncodeTransaction(tx)
	if err != nil {
		return nil, err
	}

	b.logger.InfoContext(ctx, "built redemption envelope",
		"wallet", req.Wallet.String(),
		"accounts", len(records),
		"total_lamports", quote.TotalLamports,
		"fee_lamports", quote.FeeLamports,
		"blockhash", blockhash.Hash.String(),
	)

	return &Envelope{
		Transaction:          tx,
		Encoded:              encoded,
		Quote:                quote,
		RecentBlockhash:      blockhash.Hash,
		LastValidBlockHeight: blockhash.LastValidBlockHeight,
		FeePayer:             req.Wallet,
		Records:              records,
	}, nil
}

// readRecords fetches the current state of each selected account and checks that the
// wallet can close it.
func (b *Builder) readRecords(ctx context.Context, req RedemptionRequest) ([]TokenAccountRecord, error) {
	states, err := b.network.Accounts(ctx, req.Accounts)
	if err != nil {
		return nil, upstream("failed to read selected accounts", err)
	}
	if len(states) != len(req.Accounts) {
		return nil, upstream(fmt.Sprintf("expected %d account states, got %d", len(req.Accounts), len(states)), nil)
	}

	records := make([]TokenAccountRecord, 0, len(states))
	for i, st := range states {
		address := req.Accounts[i].String()
		switch {
		case st == nil:
			return nil, invalidAccount(address, "account does not exist")
		case !st.Program.Equals(solana.TokenProgramID):
			return nil, invalidAccount(address, "not a token account")
		case st.Token == nil:
			return nil, invalidAccount(address, "token account data could not be decoded")
		case !st.Token.Owner.Equals(req.Wallet):
			return nil, invalidAccount(address, "token account is not owned by wallet")
		case st.Token.Amount != 0:
			return nil, invalidAccount(address, "token account balance is not zero")
		case st.Token.Frozen:
			return nil, invalidAccount(address, "token account is frozen")
		case !st.Token.CanClose(req.Wallet):
			return nil, invalidAccount(address, "wallet is not the close authority")
		}
		records = append(records, TokenAccountRecord{
			Address:      req.Accounts[i],
			Owner:        st.Token.Owner,
			Mint:         st.Token.Mint,
			BalanceUnits: st.Token.Amount,
			RentLamports: st.Lamports,
		})
	}
	return records, nil
}
