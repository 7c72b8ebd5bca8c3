package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/brojonat/reclaim/service/redemption"
	"github.com/bytedance/sonic"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const depositLamports = 2039280

// runApp runs the CLI with args and returns what it wrote to stdout.
func runApp(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.Reader = strings.NewReader(stdin)
	err := app.Run(append([]string{"reclaim"}, args...))
	return out.String(), err
}

// captureExit swallows exit codes produced by cli.Exit for the duration of the test.
func captureExit(t *testing.T) *int {
	t.Helper()
	code := -1
	orig := cli.OsExiter
	cli.OsExiter = func(c int) { code = c }
	t.Cleanup(func() { cli.OsExiter = orig })
	return &code
}

// fixture is a fake redemption service for one wallet.
type fixture struct {
	wallet    solanago.PrivateKey
	operator  solanago.PublicKey
	accounts  []solanago.PublicKey
	blockhash solanago.Hash
	fee       uint64

	status string // reported by /submit-transaction

	mu       sync.Mutex
	redeemed []string
	received []byte
}

func (f *fixture) lastRedeemed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.redeemed
}

func (f *fixture) lastReceived() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	f := &fixture{
		wallet:    solanago.NewWallet().PrivateKey,
		operator:  solanago.NewWallet().PublicKey(),
		blockhash: solanago.HashFromBytes(solanago.NewWallet().PublicKey().Bytes()),
		status:    "finalized",
	}
	for i := 0; i < n; i++ {
		f.accounts = append(f.accounts, solanago.NewWallet().PublicKey())
	}
	f.fee = uint64(n) * depositLamports / 100
	return f
}

func (f *fixture) envelope(t *testing.T, recipient solanago.PublicKey) string {
	t.Helper()
	owner := f.wallet.PublicKey()
	var instructions []solanago.Instruction
	for _, a := range f.accounts {
		instructions = append(instructions, token.NewCloseAccountInstruction(a, owner, owner, []solanago.PublicKey{}).Build())
	}
	instructions = append(instructions, system.NewTransferInstruction(f.fee, owner, recipient).Build())

	tx, err := solanago.NewTransaction(instructions, f.blockhash, solanago.TransactionPayer(owner))
	require.NoError(t, err)
	encoded, err := redemption.EncodeTransaction(tx)
	require.NoError(t, err)
	return encoded
}

func (f *fixture) server(t *testing.T, recipient solanago.PublicKey) *httptest.Server {
	t.Helper()
	encoded := f.envelope(t, recipient)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /get-token-accounts", func(w http.ResponseWriter, r *http.Request) {
		accounts := make([]map[string]interface{}, len(f.accounts))
		for i, a := range f.accounts {
			accounts[i] = map[string]interface{}{
				"pubkey":       a.String(),
				"rent":         redemption.LamportsToSOL(depositLamports),
				"rentLamports": depositLamports,
				"mint":         solanago.NewWallet().PublicKey().String(),
			}
		}
		writeBody(t, w, http.StatusOK, map[string]interface{}{
			"success":           true,
			"abandonedAccounts": accounts,
		})
	})

	mux.HandleFunc("POST /redeem", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PublicKey        string   `json:"publicKey"`
			SelectedAccounts []string `json:"selectedAccounts"`
		}
		if !assert.NoError(t, sonic.ConfigStd.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, f.wallet.PublicKey().String(), req.PublicKey)
		f.mu.Lock()
		f.redeemed = req.SelectedAccounts
		f.mu.Unlock()

		writeBody(t, w, http.StatusOK, map[string]interface{}{
			"transaction":              encoded,
			"recentBlockhash":          f.blockhash.String(),
			"lastValidBlockHeight":     1000,
			"totalReclaimableLamports": uint64(len(f.accounts)) * depositLamports,
			"serviceFeeLamports":       f.fee,
			"feeBasisPoints":           100,
		})
	})

	mux.HandleFunc("POST /submit-transaction", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SignedTransaction string `json:"signedTransaction"`
		}
		if !assert.NoError(t, sonic.ConfigStd.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		raw, err := base64.StdEncoding.DecodeString(req.SignedTransaction)
		if !assert.NoError(t, err) {
			return
		}
		f.mu.Lock()
		f.received = raw
		f.mu.Unlock()

		tx, err := redemption.DecodeTransaction(raw)
		if err != nil || tx.VerifySignatures() != nil {
			writeBody(t, w, http.StatusInternalServerError, map[string]interface{}{
				"success": false,
				"error":   "signature verification failed",
			})
			return
		}

		body := map[string]interface{}{
			"success": f.status == "finalized",
			"txid":    tx.Signatures[0].String(),
			"status":  f.status,
		}
		code := http.StatusOK
		switch f.status {
		case "failed":
			body["error"] = `{"InstructionError":[0,"InvalidAccountData"]}`
		case "pending":
			body["error"] = "outcome unknown"
			code = http.StatusAccepted
		}
		writeBody(t, w, code, body)
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func writeBody(t *testing.T, w http.ResponseWriter, code int, v interface{}) {
	t.Helper()
	data, err := sonic.Marshal(v)
	assert.NoError(t, err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

// writeKeypair stores key in the solana-keygen JSON format.
func writeKeypair(t *testing.T, key solanago.PrivateKey) string {
	t.Helper()
	ints := make([]string, len(key))
	for i, b := range key {
		ints[i] = fmt.Sprint(b)
	}
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, []byte("["+strings.Join(ints, ",")+"]"), 0o600))
	return path
}
