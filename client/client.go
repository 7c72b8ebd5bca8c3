package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
)

// AbandonedAccount is a zero-balance token account whose deposit can be reclaimed.
type AbandonedAccount struct {
	Pubkey       string  `json:"pubkey"`
	Rent         float64 `json:"rent"` // SOL
	RentLamports uint64  `json:"rentLamports"`
	Mint         string  `json:"mint"`
}

// Envelope is an unsigned redemption transaction and its fee quote.
type Envelope struct {
	Transaction              string `json:"transaction"` // base64 wire format
	RecentBlockhash          string `json:"recentBlockhash"`
	LastValidBlockHeight     uint64 `json:"lastValidBlockHeight"`
	TotalReclaimableLamports uint64 `json:"totalReclaimableLamports"`
	ServiceFeeLamports       uint64 `json:"serviceFeeLamports"`
	FeeBasisPoints           uint64 `json:"feeBasisPoints"`
}

// SubmitResult is the server's report on a submitted transaction.
// Status is "finalized", "failed" or "pending"; pending means the outcome is unknown.
type SubmitResult struct {
	Success bool   `json:"success"`
	TxID    string `json:"txid"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// APIError is returned when the server answers with an error status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// Client is the HTTP client for the reclaim redemption service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new redemption service client. The default HTTP timeout allows
// for the server's confirmation wait on submit.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// GetTokenAccounts lists the wallet's abandoned token accounts.
func (c *Client) GetTokenAccounts(ctx context.Context, wallet string) ([]AbandonedAccount, error) {
	var resp struct {
		Success           bool               `json:"success"`
		AbandonedAccounts []AbandonedAccount `json:"abandonedAccounts"`
	}
	status, err := c.post(ctx, "/get-token-accounts", map[string]interface{}{
		"walletPublicKey": wallet,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &APIError{StatusCode: status, Message: "unexpected status"}
	}

	c.logger.Debug("fetched abandoned accounts", "wallet", wallet, "count", len(resp.AbandonedAccounts))
	return resp.AbandonedAccounts, nil
}

// Redeem asks the server to build an unsigned transaction closing the given accounts.
func (c *Client) Redeem(ctx context.Context, wallet string, accounts []string) (*Envelope, error) {
	var env Envelope
	status, err := c.post(ctx, "/redeem", map[string]interface{}{
		"publicKey":        wallet,
		"selectedAccounts": accounts,
	}, &env)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &APIError{StatusCode: status, Message: "unexpected status"}
	}

	c.logger.Debug("received redemption envelope",
		"wallet", wallet,
		"accounts", len(accounts),
		"fee_lamports", env.ServiceFeeLamports,
	)
	return &env, nil
}

// SubmitTransaction sends a signed transaction and waits for the server's verdict.
// A transaction that failed on chain or whose outcome is unknown is reported in the
// result, not as an error.
func (c *Client) SubmitTransaction(ctx context.Context, signed []byte) (*SubmitResult, error) {
	var result SubmitResult
	status, err := c.post(ctx, "/submit-transaction", map[string]interface{}{
		"signedTransaction": base64.StdEncoding.EncodeToString(signed),
	}, &result)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		return nil, &APIError{StatusCode: status, Message: "unexpected status"}
	}

	c.logger.Debug("transaction submitted", "txid", result.TxID, "status", result.Status)
	return &result, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	return nil
}

// post sends a JSON request and decodes a 2xx response into out.
func (c *Client) post(ctx context.Context, path string, in interface{}, out interface{}) (int, error) {
	body, err := sonic.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, c.parseErrorResponse(resp)
	}

	if err := sonic.ConfigStd.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := sonic.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
