package redemption

import (
	"context"
	"log/slog"
	"strings"

	"github.com/brojonat/reclaim/service/metrics"
	solanago "github.com/gagliardetto/solana-go"
)

// TokenAccountRecord is a token account as seen at the time it was read.
type TokenAccountRecord struct {
	Address      solanago.PublicKey
	Owner        solanago.PublicKey
	Mint         solanago.PublicKey
	BalanceUnits uint64
	RentLamports uint64
}

// Discovery finds a wallet's abandoned token accounts: zero balance, deposit still locked.
type Discovery struct {
	network Network
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDiscovery creates a Discovery. If metrics is nil, no metrics will be recorded.
func NewDiscovery(network Network, m *metrics.Metrics, logger *slog.Logger) *Discovery {
	return &Discovery{network: network, metrics: m, logger: logger}
}

// Discover returns the wallet's zero-balance token accounts in the order the node
// reported them. A wallet without token accounts yields an empty slice.
func (d *Discovery) Discover(ctx context.Context, wallet string) ([]TokenAccountRecord, error) {
	owner, err := ParseWallet(wallet)
	if err != nil {
		return nil, err
	}

	accounts, err := d.network.TokenAccountsByOwner(ctx, owner)
	if err != nil {
		return nil, upstream("failed to fetch token accounts", err)
	}

	records := make([]TokenAccountRecord, 0, len(accounts))
	for _, acc := range accounts {
		if acc.Amount != 0 {
			continue
		}
		records = append(records, TokenAccountRecord{
			Address:      acc.Address,
			Owner:        acc.Owner,
			Mint:         acc.Mint,
			BalanceUnits: acc.Amount,
			RentLamports: acc.Lamports,
		})
	}

	if d.metrics != nil {
		d.metrics.RecordAccountsDiscovered(len(records))
	}
	d.logger.InfoContext(ctx, "discovered abandoned token accounts",
		"wallet", owner.String(),
		"token_accounts", len(accounts),
		"abandoned", len(records),
	)
	return records, nil
}

// ParseWallet validates a base58 wallet address.
func ParseWallet(wallet string) (solanago.PublicKey, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return solanago.PublicKey{}, invalidInput("wallet public key is required")
	}
	pk, err := solanago.PublicKeyFromBase58(wallet)
	if err != nil {
		return solanago.PublicKey{}, &Error{Kind: KindInvalidInput, Msg: "invalid wallet public key", Err: err}
	}
	return pk, nil
}
