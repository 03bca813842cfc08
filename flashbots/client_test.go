package flashbots

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	method    string
	signature string
	body      []byte
}

func relayServer(t *testing.T, response string, captured *[]capturedRequest, hits *int64) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var rpc struct {
			Method string `json:"method"`
		}
		require.NoError(t, json.Unmarshal(body, &rpc))

		if captured != nil {
			*captured = append(*captured, capturedRequest{
				method:    rpc.Method,
				signature: r.Header.Get("X-Flashbots-Signature"),
				body:      body,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
	}))
}

func TestSendBundleSignsRequest(t *testing.T) {
	var captured []capturedRequest
	var hits int64
	server := relayServer(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, &captured, &hits)
	defer server.Close()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	client, err := NewClient(server.URL, key, nil)
	require.NoError(t, err)

	err = client.SendBundle(context.Background(), &Bundle{
		Txs:         [][]byte{{0x02, 0xf8, 0x01}},
		BlockNumber: big.NewInt(1000),
	})
	require.NoError(t, err)

	require.Len(t, captured, 1)
	assert.Equal(t, "eth_sendBundle", captured[0].method)

	// Header format is address:signature, keyed by the auth signer.
	signerAddr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	parts := strings.SplitN(captured[0].signature, ":", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, signerAddr, parts[0])
	assert.True(t, strings.HasPrefix(parts[1], "0x"))
}

func TestSendBundleDeduplicates(t *testing.T) {
	var hits int64
	server := relayServer(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, nil, &hits)
	defer server.Close()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	client, err := NewClient(server.URL, key, nil)
	require.NoError(t, err)

	bundle := &Bundle{
		Txs:         [][]byte{{0x02, 0xf8, 0x01}},
		BlockNumber: big.NewInt(1000),
	}

	require.NoError(t, client.SendBundle(context.Background(), bundle))
	require.NoError(t, client.SendBundle(context.Background(), bundle))
	assert.Equal(t, int64(1), atomic.LoadInt64(&hits), "identical bundle for the same block is sent once")

	// Same txs for a different block is a new submission.
	require.NoError(t, client.SendBundle(context.Background(), &Bundle{
		Txs:         bundle.Txs,
		BlockNumber: big.NewInt(1001),
	}))
	assert.Equal(t, int64(2), atomic.LoadInt64(&hits))
}

func TestSendBundleRelayError(t *testing.T) {
	var hits int64
	server := relayServer(t, `{"jsonrpc":"2.0","id":1,"error":{"code":-32600,"message":"bundle too large"}}`, nil, &hits)
	defer server.Close()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	client, err := NewClient(server.URL, key, nil)
	require.NoError(t, err)

	bundle := &Bundle{Txs: [][]byte{{0x01}}, BlockNumber: big.NewInt(1)}
	err = client.SendBundle(context.Background(), bundle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bundle too large")

	// A rejected bundle is not cached; retrying hits the relay again.
	_ = client.SendBundle(context.Background(), bundle)
	assert.Equal(t, int64(2), atomic.LoadInt64(&hits))
}

func TestCallBundleSuccess(t *testing.T) {
	response := `{"jsonrpc":"2.0","id":1,"result":{
		"coinbaseDiff":"20000000000000000",
		"totalGasUsed":150000,
		"stateBlockNumber":999,
		"results":[{"txHash":"0xabc","error":"","revert":""}]
	}}`
	var hits int64
	server := relayServer(t, response, nil, &hits)
	defer server.Close()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	client, err := NewClient(server.URL, key, nil)
	require.NoError(t, err)

	sim, err := client.CallBundle(context.Background(), &Bundle{
		Txs:         [][]byte{{0x01}},
		BlockNumber: big.NewInt(1000),
	})
	require.NoError(t, err)

	assert.True(t, sim.Success)
	assert.Empty(t, sim.FirstRevert)
	assert.Equal(t, uint64(150000), sim.GasUsed)
	assert.Equal(t, uint64(999), sim.StateBlockNumber)
	assert.Equal(t, big.NewInt(2e16), sim.CoinbaseDiff)
}

func TestCallBundleFirstRevert(t *testing.T) {
	response := `{"jsonrpc":"2.0","id":1,"result":{
		"coinbaseDiff":"0",
		"totalGasUsed":80000,
		"stateBlockNumber":999,
		"results":[
			{"txHash":"0x111","error":"","revert":""},
			{"txHash":"0x222","error":"execution reverted","revert":"UniswapV2: K"},
			{"txHash":"0x333","error":"","revert":""}
		]
	}}`
	var hits int64
	server := relayServer(t, response, nil, &hits)
	defer server.Close()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	client, err := NewClient(server.URL, key, nil)
	require.NoError(t, err)

	sim, err := client.CallBundle(context.Background(), &Bundle{
		Txs:         [][]byte{{0x01}},
		BlockNumber: big.NewInt(1000),
	})
	require.NoError(t, err)

	assert.False(t, sim.Success)
	assert.Equal(t, "0x222", sim.FirstRevert)
}

func TestCallBundleTopLevelError(t *testing.T) {
	var hits int64
	server := relayServer(t, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"unable to decode txs"}}`, nil, &hits)
	defer server.Close()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	client, err := NewClient(server.URL, key, nil)
	require.NoError(t, err)

	sim, err := client.CallBundle(context.Background(), &Bundle{
		Txs:         [][]byte{{0x01}},
		BlockNumber: big.NewInt(1000),
	})
	require.NoError(t, err)

	assert.False(t, sim.Success)
	assert.Contains(t, sim.Error, "unable to decode txs")
}
