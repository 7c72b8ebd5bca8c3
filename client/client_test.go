package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTokenAccounts_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/get-token-accounts", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "wallet123", body["walletPublicKey"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"abandonedAccounts":[{"pubkey":"acct1","rent":0.00203928,"rentLamports":2039280,"mint":"mint1"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	accounts, err := client.GetTokenAccounts(context.Background(), "wallet123")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "acct1", accounts[0].Pubkey)
	assert.Equal(t, uint64(2039280), accounts[0].RentLamports)
	assert.InDelta(t, 0.00203928, accounts[0].Rent, 1e-12)
}

func TestGetTokenAccounts_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "Failed to fetch token accounts.",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.GetTokenAccounts(context.Background(), "wallet123")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "Failed to fetch token accounts.", apiErr.Message)
}

func TestRedeem_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/redeem", r.URL.Path)

		var body struct {
			PublicKey        string   `json:"publicKey"`
			SelectedAccounts []string `json:"selectedAccounts"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "wallet123", body.PublicKey)
		assert.Equal(t, []string{"a", "b"}, body.SelectedAccounts)

		w.Write([]byte(`{"success":true,"transaction":"AQID","recentBlockhash":"hash","lastValidBlockHeight":150,"totalReclaimableLamports":4078560,"serviceFeeLamports":40785,"feeBasisPoints":100}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	env, err := client.Redeem(context.Background(), "wallet123", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "AQID", env.Transaction)
	assert.Equal(t, uint64(150), env.LastValidBlockHeight)
	assert.Equal(t, uint64(40785), env.ServiceFeeLamports)
}

func TestRedeem_BadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"error":"Invalid input data."}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Redeem(context.Background(), "wallet123", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid input data.")
}

func TestSubmitTransaction(t *testing.T) {
	signed := []byte{1, 2, 3}

	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    bool
		wantStatus string
	}{
		{
			name:       "finalized",
			status:     http.StatusOK,
			body:       `{"success":true,"txid":"sig","status":"finalized"}`,
			wantStatus: "finalized",
		},
		{
			name:       "failed on chain",
			status:     http.StatusOK,
			body:       `{"success":false,"txid":"sig","status":"failed","error":"InvalidAccountData"}`,
			wantStatus: "failed",
		},
		{
			name:       "pending",
			status:     http.StatusAccepted,
			body:       `{"success":false,"txid":"sig","status":"pending","error":"unknown"}`,
			wantStatus: "pending",
		},
		{
			name:    "rejected",
			status:  http.StatusInternalServerError,
			body:    `{"success":false,"error":"Blockhash not found"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/submit-transaction", r.URL.Path)

				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, base64.StdEncoding.EncodeToString(signed), body["signedTransaction"])

				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, nil, nil)
			result, err := client.SubmitTransaction(context.Background(), signed)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "Blockhash not found")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "sig", result.TxID)
			assert.Equal(t, tt.wantStatus, result.Status)
		})
	}
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	assert.NoError(t, NewClient(server.URL, nil, nil).Health(context.Background()))
}

func TestHealth_Down(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("unavailable"))
	}))
	defer server.Close()

	err := NewClient(server.URL, nil, nil).Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
