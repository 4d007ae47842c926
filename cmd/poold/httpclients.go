package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/holiman/uint256"

	"poolcore/crypto"
)

// httpOracleClient satisfies pool.OracleClient by calling a JSON/HTTP price
// feed, the daemon's concrete stand-in for the external oracle collaborator
// spec.md §1 carves out of the protocol core.
type httpOracleClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPOracleClient(addr string, timeout time.Duration) *httpOracleClient {
	return &httpOracleClient{baseURL: addr, client: &http.Client{Timeout: timeout}}
}

type oraclePriceResponse struct {
	Price    string `json:"price"`
	Decimals uint8  `json:"decimals"`
}

func (c *httpOracleClient) GetPrice(asset crypto.Address) (*uint256.Int, uint8, error) {
	resp, err := c.client.Get(fmt.Sprintf("%s/price/%s", c.baseURL, asset.String()))
	if err != nil {
		return nil, 0, fmt.Errorf("oracle: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("oracle: status %d", resp.StatusCode)
	}
	var payload oraclePriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, fmt.Errorf("oracle: decode response: %w", err)
	}
	price, err := uint256.FromDecimal(payload.Price)
	if err != nil {
		return nil, 0, fmt.Errorf("oracle: malformed price %q: %w", payload.Price, err)
	}
	return price, payload.Decimals, nil
}

// httpTokenClient satisfies pool.TokenClient (and backstop.TokenTransferer)
// against a token-custody sidecar reached over HTTP, the daemon's concrete
// stand-in for the host chain's token standard.
type httpTokenClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPTokenClient(addr string, timeout time.Duration) *httpTokenClient {
	return &httpTokenClient{baseURL: addr, client: &http.Client{Timeout: timeout}}
}

type tokenTransferRequest struct {
	Asset  string `json:"asset"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (c *httpTokenClient) post(path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.client.Post(c.baseURL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token: status %d", resp.StatusCode)
	}
	return nil
}

func (c *httpTokenClient) Transfer(asset, from, to crypto.Address, amount *uint256.Int) error {
	return c.post("/transfer", tokenTransferRequest{
		Asset: asset.String(), From: from.String(), To: to.String(), Amount: amount.String(),
	})
}

func (c *httpTokenClient) TransferFrom(asset, spender, from, to crypto.Address, amount *uint256.Int) error {
	return c.post("/transfer_from", tokenTransferRequest{
		Asset: asset.String(), From: from.String(), To: to.String(), Amount: amount.String(),
	})
}

type tokenApproveRequest struct {
	Asset      string `json:"asset"`
	Owner      string `json:"owner"`
	Spender    string `json:"spender"`
	Amount     string `json:"amount"`
	Expiration uint64 `json:"expiration"`
}

func (c *httpTokenClient) Approve(asset crypto.Address, owner, spender crypto.Address, amount *uint256.Int, expiration uint64) error {
	return c.post("/approve", tokenApproveRequest{
		Asset: asset.String(), Owner: owner.String(), Spender: spender.String(),
		Amount: amount.String(), Expiration: expiration,
	})
}

// httpEmitterClient satisfies emissions.Manager's getLastDistro callback
// against the backstop emitter's own status endpoint.
type httpEmitterClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPEmitterClient(addr string, timeout time.Duration) *httpEmitterClient {
	return &httpEmitterClient{baseURL: addr, client: &http.Client{Timeout: timeout}}
}

type emitterStatusResponse struct {
	LastDistro uint64 `json:"last_distro"`
}

func (c *httpEmitterClient) GetLastDistro() (uint64, error) {
	resp, err := c.client.Get(c.baseURL + "/last_distro")
	if err != nil {
		return 0, fmt.Errorf("emitter: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("emitter: status %d", resp.StatusCode)
	}
	var payload emitterStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("emitter: decode response: %w", err)
	}
	return payload.LastDistro, nil
}
