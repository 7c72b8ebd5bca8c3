package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/brojonat/reclaim/service/nats"
	"github.com/brojonat/reclaim/service/redemption"
	"github.com/bytedance/sonic"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - a signed transaction is at most 1232 bytes
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// Response messages returned to clients.
const (
	msgWalletRequired      = "Wallet public key is required."
	msgInvalidInput        = "Invalid input data."
	msgSignedTxRequired    = "Signed transaction is required."
	msgFetchFailed         = "Failed to fetch token accounts."
	msgRedeemFailed        = "Failed to process redemption request."
	msgSubmitFailed        = "Failed to submit transaction."
	msgOutcomeUnknown      = "Transaction was sent but its outcome is not known yet."
	msgBodyTooLarge        = "request body too large: maximum size is 1MB"
	msgTransactionRejected = "Transaction was rejected."
)

// Redeemer is the redemption service as seen by the HTTP layer.
type Redeemer interface {
	Discover(ctx context.Context, wallet string) ([]redemption.TokenAccountRecord, error)
	Prepare(ctx context.Context, wallet string, accounts []string) (*redemption.Envelope, error)
	Submit(ctx context.Context, signed []byte) (*redemption.SubmissionResult, error)
}

type abandonedAccount struct {
	Pubkey       string  `json:"pubkey"`
	Rent         float64 `json:"rent"` // SOL
	RentLamports uint64  `json:"rentLamports"`
	Mint         string  `json:"mint"`
}

// handleGetTokenAccounts returns a handler that lists a wallet's abandoned token accounts.
// POST /get-token-accounts {"walletPublicKey": "..."}
func handleGetTokenAccounts(redeemer Redeemer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r, logger)

		var req struct {
			WalletPublicKey string `json:"walletPublicKey"`
		}
		if !decodeBody(w, r, &req, log) {
			return
		}

		if strings.TrimSpace(req.WalletPublicKey) == "" {
			writeError(w, msgWalletRequired, http.StatusBadRequest)
			return
		}
		if err := validateAddress(req.WalletPublicKey); err != nil {
			log.Debug("invalid wallet", "wallet", req.WalletPublicKey, "error", err)
			writeError(w, msgInvalidInput, http.StatusBadRequest)
			return
		}

		records, err := redeemer.Discover(r.Context(), req.WalletPublicKey)
		if err != nil {
			status := statusFor(err)
			if status == http.StatusBadRequest {
				log.Debug("invalid discovery request", "wallet", req.WalletPublicKey, "error", err)
				writeError(w, msgInvalidInput, status)
				return
			}
			log.Error("failed to fetch token accounts", "wallet", req.WalletPublicKey, "error", err)
			writeError(w, msgFetchFailed, status)
			return
		}

		accounts := make([]abandonedAccount, len(records))
		for i, rec := range records {
			accounts[i] = abandonedAccount{
				Pubkey:       rec.Address.String(),
				Rent:         redemption.LamportsToSOL(rec.RentLamports),
				RentLamports: rec.RentLamports,
				Mint:         rec.Mint.String(),
			}
		}

		writeJSON(w, map[string]interface{}{
			"success":           true,
			"abandonedAccounts": accounts,
		}, http.StatusOK)
	})
}

// handleRedeem returns a handler that builds an unsigned redemption transaction.
// POST /redeem {"publicKey": "...", "selectedAccounts": ["...", ...]}
func handleRedeem(redeemer Redeemer, publisher nats.Publisher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r, logger)

		var req struct {
			PublicKey        string   `json:"publicKey"`
			SelectedAccounts []string `json:"selectedAccounts"`
		}
		if !decodeBody(w, r, &req, log) {
			return
		}

		if err := validateAddress(req.PublicKey); err != nil {
			log.Debug("invalid wallet", "wallet", req.PublicKey, "error", err)
			writeError(w, msgInvalidInput, http.StatusBadRequest)
			return
		}
		for _, a := range req.SelectedAccounts {
			if err := validateAddress(a); err != nil {
				log.Debug("invalid account", "account", a, "error", err)
				writeError(w, msgInvalidInput, http.StatusBadRequest)
				return
			}
		}

		env, err := redeemer.Prepare(r.Context(), req.PublicKey, req.SelectedAccounts)
		if err != nil {
			switch redemption.KindOf(err) {
			case redemption.KindInvalidInput, redemption.KindEmptySelection:
				log.Debug("invalid redemption request", "wallet", req.PublicKey, "error", err)
				writeError(w, msgInvalidInput, http.StatusBadRequest)
			case redemption.KindInvalidAccount:
				log.Info("redemption request names an ineligible account", "wallet", req.PublicKey, "error", err)
				writeError(w, fmt.Sprintf("Invalid account %s", err), http.StatusBadRequest)
			default:
				log.Error("failed to build redemption transaction", "wallet", req.PublicKey, "error", err)
				writeError(w, msgRedeemFailed, statusFor(err))
			}
			return
		}

		event := nats.NewRedemptionEvent(nats.StagePrepared, env.FeePayer.String())
		event.Accounts = len(env.Records)
		event.TotalLamports = env.Quote.TotalLamports
		event.FeeLamports = env.Quote.FeeLamports
		event.Blockhash = env.RecentBlockhash.String()
		notify(r.Context(), publisher, event, log)

		writeJSON(w, map[string]interface{}{
			"success":                  true,
			"transaction":              env.Encoded,
			"recentBlockhash":          env.RecentBlockhash.String(),
			"lastValidBlockHeight":     env.LastValidBlockHeight,
			"totalReclaimableLamports": env.Quote.TotalLamports,
			"serviceFeeLamports":       env.Quote.FeeLamports,
			"feeBasisPoints":           env.Quote.BasisPoints,
		}, http.StatusOK)
	})
}

// handleSubmitTransaction returns a handler that broadcasts a signed transaction and
// waits for its outcome.
// POST /submit-transaction {"signedTransaction": [1, 2, ...] | "base64"}
func handleSubmitTransaction(redeemer Redeemer, publisher nats.Publisher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r, logger)

		var req struct {
			SignedTransaction signedPayload `json:"signedTransaction"`
		}
		if !decodeBody(w, r, &req, log) {
			return
		}
		if len(req.SignedTransaction) == 0 {
			writeError(w, msgSignedTxRequired, http.StatusBadRequest)
			return
		}

		raw := []byte(req.SignedTransaction)
		event := nats.NewRedemptionEvent(nats.StageSubmitted, feePayerOf(raw))

		result, err := redeemer.Submit(r.Context(), raw)
		if err != nil {
			var rerr *redemption.Error
			errors.As(err, &rerr)

			switch redemption.KindOf(err) {
			case redemption.KindInvalidInput:
				log.Debug("invalid signed transaction", "error", err)
				writeError(w, msgInvalidInput, http.StatusBadRequest)
			case redemption.KindSubmissionRejected:
				log.Warn("transaction rejected", "error", err)
				event.Status = "rejected"
				event.Detail = rerr.Msg
				notify(r.Context(), publisher, event, log)
				reason := rerr.Msg
				if reason == "" {
					reason = msgTransactionRejected
				}
				writeError(w, reason, http.StatusInternalServerError)
			case redemption.KindConfirmationTimeout:
				log.Warn("transaction outcome unknown", "txid", rerr.TxID, "error", err)
				event.TxID = rerr.TxID
				event.Status = string(redemption.StatusPending)
				notify(r.Context(), publisher, event, log)
				writeJSON(w, map[string]interface{}{
					"success": false,
					"txid":    rerr.TxID,
					"status":  redemption.StatusPending,
					"error":   msgOutcomeUnknown,
				}, http.StatusAccepted)
			default:
				log.Error("failed to submit transaction", "error", err)
				writeError(w, msgSubmitFailed, statusFor(err))
			}
			return
		}

		event.TxID = result.TxID
		event.Status = string(result.Status)
		event.Detail = result.Detail
		notify(r.Context(), publisher, event, log)

		if result.Status == redemption.StatusFailed {
			writeJSON(w, map[string]interface{}{
				"success": false,
				"txid":    result.TxID,
				"status":  result.Status,
				"error":   result.Detail,
			}, http.StatusOK)
			return
		}

		writeJSON(w, map[string]interface{}{
			"success": true,
			"txid":    result.TxID,
			"status":  result.Status,
		}, http.StatusOK)
	})
}

// statusFor maps a redemption error to an HTTP status code.
func statusFor(err error) int {
	switch redemption.KindOf(err) {
	case redemption.KindInvalidInput, redemption.KindEmptySelection, redemption.KindInvalidAccount:
		return http.StatusBadRequest
	case redemption.KindConfirmationTimeout:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

// notify publishes an event if a publisher is configured. Failures are logged only.
func notify(ctx context.Context, publisher nats.Publisher, event *nats.RedemptionEvent, logger *slog.Logger) {
	if publisher == nil || event.Wallet == "" {
		return
	}
	event.RequestID = requestIDFrom(ctx)
	if err := publisher.PublishRedemption(ctx, event); err != nil {
		logger.Warn("failed to publish redemption event",
			"event_id", event.EventID,
			"stage", event.Stage,
			"error", err,
		)
	}
}

// feePayerOf returns the fee payer of a serialized transaction, or "" if it does not decode.
func feePayerOf(raw []byte) string {
	tx, err := redemption.DecodeTransaction(raw)
	if err != nil || len(tx.Message.AccountKeys) == 0 {
		return ""
	}
	return tx.Message.AccountKeys[0].String()
}

// signedPayload accepts the shapes wallet clients send a serialized transaction in:
// an array of byte values, a Node Buffer object, or a base64 string.
type signedPayload []byte

func (p *signedPayload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = nil
		return nil
	}

	var values []int
	switch data[0] {
	case '"':
		var s string
		if err := sonic.ConfigStd.Unmarshal(data, &s); err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("signedTransaction: invalid base64: %w", err)
		}
		*p = raw
		return nil
	case '[':
		if err := sonic.ConfigStd.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("signedTransaction: %w", err)
		}
	case '{':
		var buf struct {
			Type string `json:"type"`
			Data []int  `json:"data"`
		}
		if err := sonic.ConfigStd.Unmarshal(data, &buf); err != nil {
			return fmt.Errorf("signedTransaction: %w", err)
		}
		if buf.Type != "Buffer" {
			return fmt.Errorf("signedTransaction: unsupported object type %q", buf.Type)
		}
		values = buf.Data
	default:
		return fmt.Errorf("signedTransaction: expected array, object or string")
	}

	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("signedTransaction: byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	*p = out
	return nil
}

// decodeBody reads a size-limited JSON body into v. It writes the error response and
// returns false if the body is unusable.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, logger *slog.Logger) bool {
	// Limit request body size to prevent memory exhaustion
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, msgBodyTooLarge, http.StatusBadRequest)
			return false
		}
		logger.Debug("failed to read request body", "error", err)
		writeError(w, msgInvalidInput, http.StatusBadRequest)
		return false
	}

	if err := sonic.ConfigStd.Unmarshal(body, v); err != nil {
		logger.Debug("failed to decode request body", "error", err)
		writeError(w, msgInvalidInput, http.StatusBadRequest)
		return false
	}
	return true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	sonic.ConfigStd.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]interface{}{
		"success": false,
		"error":   message,
	}, statusCode)
}

// validateAddress rejects input that cannot be a base58 address before it reaches the
// decoder.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	// Check for null bytes and control characters
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(strings.TrimSpace(address)) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
