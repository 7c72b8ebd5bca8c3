package nats

import (
	"time"

	"github.com/google/uuid"
)

// Redemption event stages.
const (
	StagePrepared  = "prepared"
	StageSubmitted = "submitted"
)

// RedemptionEvent describes one step of a redemption flow.
// It is published to the subject "reclaim.redemptions.{wallet}".
type RedemptionEvent struct {
	EventID string `json:"event_id"`
	Stage   string `json:"stage"`
	Wallet  string `json:"wallet"`

	// Set for prepared envelopes
	Accounts      int    `json:"accounts,omitempty"`
	TotalLamports uint64 `json:"total_lamports,omitempty"`
	FeeLamports   uint64 `json:"fee_lamports,omitempty"`
	Blockhash     string `json:"blockhash,omitempty"`

	// Set for submissions
	TxID   string `json:"txid,omitempty"`
	Status string `json:"status,omitempty"` // finalized, failed, pending, rejected
	Detail string `json:"detail,omitempty"`

	RequestID   string    `json:"request_id,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// NewRedemptionEvent creates an event with a fresh id and timestamp.
func NewRedemptionEvent(stage, wallet string) *RedemptionEvent {
	return &RedemptionEvent{
		EventID:     uuid.NewString(),
		Stage:       stage,
		Wallet:      wallet,
		PublishedAt: time.Now().UTC(),
	}
}
