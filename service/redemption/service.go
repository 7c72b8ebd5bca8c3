package redemption

import (
	"context"
	"log/slog"
	"time"

	"github.com/brojonat/reclaim/service/metrics"
	solanago "github.com/gagliardetto/solana-go"
)

// Config holds the operator settings of the redemption flow.
type Config struct {
	Operator            solanago.PublicKey
	FeeBasisPoints      uint64
	MaxSelectedAccounts int
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
}

// Service exposes the three stateless redemption operations. Nothing is retained
// between calls; the envelope and the signed transaction travel through the caller.
type Service struct {
	network     Network
	discovery   *Discovery
	builder     *Builder
	coordinator *Coordinator
	maxSelected int
	logger      *slog.Logger
}

// NewService wires discovery, building and submission over one network client.
func NewService(network Network, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		network:     network,
		discovery:   NewDiscovery(network, m, logger),
		builder:     NewBuilder(network, cfg.Operator, FeeCalculator{BasisPoints: cfg.FeeBasisPoints}, m, logger),
		coordinator: NewCoordinator(network, cfg.ConfirmTimeout, cfg.ConfirmPollInterval, m, logger),
		maxSelected: cfg.MaxSelectedAccounts,
		logger:      logger,
	}
}

// Discover lists the wallet's abandoned token accounts.
func (s *Service) Discover(ctx context.Context, wallet string) ([]TokenAccountRecord, error) {
	return s.discovery.Discover(ctx, wallet)
}

// Prepare validates a selection, fetches a fresh blockhash and builds the unsigned envelope.
func (s *Service) Prepare(ctx context.Context, wallet string, accounts []string) (*Envelope, error) {
	req, err := ParseRequest(wallet, accounts, s.maxSelected)
	if err != nil {
		return nil, err
	}

	blockhash, err := s.network.LatestBlockhash(ctx)
	if err != nil {
		return nil, upstream("failed to fetch recent blockhash", err)
	}

	return s.builder.Build(ctx, req, blockhash)
}

// Submit broadcasts a signed envelope and waits for its outcome.
func (s *Service) Submit(ctx context.Context, signed []byte) (*SubmissionResult, error) {
	return s.coordinator.Submit(ctx, signed)
}
