// Package flashbots is a minimal client for a private bundle relay: signed
// JSON-RPC simulation (eth_callBundle) and submission (eth_sendBundle).
package flashbots

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"
)

const (
	contentTypeJSON  = "application/json"
	flashbotsXHeader = "X-Flashbots-Signature"
	methodSendBundle = "eth_sendBundle"
	methodCallBundle = "eth_callBundle"

	// Submitted-bundle digests kept to suppress duplicate submissions when
	// cycles overlap on the same target block.
	submittedCacheSize = 512
)

// Client is a relay RPC client. Requests are signed with the auth key; the
// relay uses the signer address for reputation, not for funds.
type Client struct {
	httpClient *http.Client
	relayURL   string
	authSigner *ecdsa.PrivateKey
	limiter    *rate.Limiter
	submitted  *lru.Cache
}

// NewClient creates a relay client. limiter may be nil to disable throttling.
func NewClient(relayURL string, authKey *ecdsa.PrivateKey, limiter *rate.Limiter) (*Client, error) {
	submitted, err := lru.New(submittedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create submission cache: %w", err)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: time.Second * 3,
		},
		relayURL:   relayURL,
		authSigner: authKey,
		limiter:    limiter,
		submitted:  submitted,
	}, nil
}

// Bundle is an ordered list of RLP-encoded signed transactions targeting one
// block height.
type Bundle struct {
	Txs         [][]byte
	BlockNumber *big.Int
}

// Simulation is the relay's verdict on a bundle before inclusion.
type Simulation struct {
	Success          bool
	Error            string
	FirstRevert      string // hash of the first reverting tx, empty if none
	GasUsed          uint64
	CoinbaseDiff     *big.Int
	StateBlockNumber uint64
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type callBundleResult struct {
	CoinbaseDiff     string `json:"coinbaseDiff"`
	TotalGasUsed     uint64 `json:"totalGasUsed"`
	StateBlockNumber uint64 `json:"stateBlockNumber"`
	Results          []struct {
		TxHash string `json:"txHash"`
		Error  string `json:"error"`
		Revert string `json:"revert"`
	} `json:"results"`
}

// CallBundle simulates the bundle against the latest state for its target
// block height.
func (c *Client) CallBundle(ctx context.Context, bundle *Bundle) (*Simulation, error) {
	params := map[string]interface{}{
		"txs":              encodeTxs(bundle.Txs),
		"blockNumber":      hexutil.EncodeBig(bundle.BlockNumber),
		"stateBlockNumber": "latest",
		"timestamp":        time.Now().Unix(),
	}

	body, err := c.post(ctx, methodCallBundle, params)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Result *callBundleResult `json:"result"`
		Error  *rpcError         `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode simulation response: %w", err)
	}
	if decoded.Error != nil {
		return &Simulation{Success: false, Error: decoded.Error.Message}, nil
	}
	if decoded.Result == nil {
		return nil, fmt.Errorf("simulation response missing result")
	}

	sim := &Simulation{
		Success:          true,
		GasUsed:          decoded.Result.TotalGasUsed,
		StateBlockNumber: decoded.Result.StateBlockNumber,
	}
	if diff, ok := new(big.Int).SetString(decoded.Result.CoinbaseDiff, 10); ok {
		sim.CoinbaseDiff = diff
	}
	for _, result := range decoded.Result.Results {
		if result.Error != "" || result.Revert != "" {
			sim.Success = false
			sim.FirstRevert = result.TxHash
			sim.Error = result.Error
			break
		}
	}
	return sim, nil
}

// SendBundle submits the bundle for its target block. A bundle already
// submitted for the same block is silently skipped.
func (c *Client) SendBundle(ctx context.Context, bundle *Bundle) error {
	digest := bundleDigest(bundle)
	if _, seen := c.submitted.Get(digest); seen {
		return nil
	}

	params := map[string]interface{}{
		"txs":         encodeTxs(bundle.Txs),
		"blockNumber": hexutil.EncodeBig(bundle.BlockNumber),
	}

	body, err := c.post(ctx, methodSendBundle, params)
	if err != nil {
		return err
	}

	var decoded struct {
		Error *rpcError `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("failed to decode submission response: %w", err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("relay rejected bundle: %s", decoded.Error.Message)
	}

	c.submitted.Add(digest, struct{}{})
	return nil
}

// post signs and sends one JSON-RPC request, returning the raw response body.
func (c *Client) post(ctx context.Context, method string, params interface{}) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{params},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}

	signature, err := crypto.Sign(
		accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(payload)))),
		c.authSigner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s request: %w", method, err)
	}

	header := fmt.Sprintf("%s:%s",
		crypto.PubkeyToAddress(c.authSigner.PublicKey).Hex(),
		hexutil.Encode(signature),
	)

	req.Header.Add("Content-Type", contentTypeJSON)
	req.Header.Add("Accept", contentTypeJSON)
	req.Header.Add(flashbotsXHeader, header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s request: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay request failed: %s", string(body))
	}
	return body, nil
}

func encodeTxs(txs [][]byte) []string {
	encoded := make([]string, len(txs))
	for i, tx := range txs {
		encoded[i] = hexutil.Encode(tx)
	}
	return encoded
}

// bundleDigest keys the submission cache on tx bytes plus target block.
func bundleDigest(bundle *Bundle) uint64 {
	h := xxhash.New()
	for _, tx := range bundle.Txs {
		_, _ = h.Write(tx)
	}
	var block [8]byte
	binary.BigEndian.PutUint64(block[:], bundle.BlockNumber.Uint64())
	_, _ = h.Write(block[:])
	return h.Sum64()
}
