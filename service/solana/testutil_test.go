package solana

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

// tokenAccountData lays out an initialized SPL token account.
func tokenAccountData(mint, owner solana.PublicKey, amount uint64) []byte {
	data := make([]byte, TokenAccountSize)
	copy(data[0:32], mint[:])
	copy(data[32:64], owner[:])
	binary.LittleEndian.PutUint64(data[64:72], amount)
	data[108] = 1 // initialized
	return data
}

// accountJSON renders an account object the way getMultipleAccounts and
// getTokenAccountsByOwner return it with base64 encoding.
func accountJSON(program solana.PublicKey, lamports uint64, data []byte) map[string]interface{} {
	return map[string]interface{}{
		"lamports":   lamports,
		"owner":      program.String(),
		"data":       []string{base64.StdEncoding.EncodeToString(data), "base64"},
		"executable": false,
		"rentEpoch":  0,
	}
}

// fromJSON builds RPC result types that have no convenient constructors.
func fromJSON(t *testing.T, v interface{}, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}
