/*
rpc.go - JSON-RPC client and the RPC-backed contract gateway

PURPOSE:
  Client speaks JSON-RPC 2.0 to an Ethereum-compatible node. Contract
  layers the Gateway interface on top: reads via eth_call with the abi.go
  codec, writes via eth_sendTransaction from a node-managed account,
  awaiting the first confirmation before returning.

ERROR SURFACING:
  Node errors (including revert reasons) are carried verbatim in a
  LedgerError - the revert reason is authoritative and identical input
  would fail identically, so nothing here retries. EIP-1193 error codes
  are preserved so the wallet layer can recognize user rejection (4001)
  and unknown-chain (4902) responses.

SEE ALSO:
  - abi.go: Call data encoding and return decoding
  - wallet/node.go: Reuses Client for account/chain/balance queries
*/
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/warp/coverage-engine/insurance"
)

// =============================================================================
// JSON-RPC Client
// =============================================================================

// Client is a minimal JSON-RPC 2.0 client.
type Client struct {
	url        string
	httpClient *http.Client
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	URL     string
	Timeout time.Duration
}

// NewClient creates a JSON-RPC client. The transport timeout is the only
// timeout this layer imposes; per-call deadlines belong to the caller's
// context.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is a JSON-RPC error object. Codes follow EIP-1193/EIP-1474
// (4001 user rejected, 4902 unrecognized chain).
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call makes a JSON-RPC call against the node.
func (c *Client) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1}
	if params == nil {
		req.Params = []any{}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// callString is Call for methods returning a JSON string.
func (c *Client) callString(ctx context.Context, method string, params []any) (string, error) {
	result, err := c.Call(ctx, method, params)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(result, &s); err != nil {
		return "", fmt.Errorf("unmarshal %s result: %w", method, err)
	}
	return s, nil
}

// ChainID returns the node's chain id.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	s, err := c.callString(ctx, "eth_chainId", nil)
	if err != nil {
		return 0, err
	}
	return parseHexUint(s)
}

// Accounts returns the accounts the node manages.
func (c *Client) Accounts(ctx context.Context) ([]string, error) {
	result, err := c.Call(ctx, "eth_accounts", nil)
	if err != nil {
		return nil, err
	}
	var accounts []string
	if err := json.Unmarshal(result, &accounts); err != nil {
		return nil, fmt.Errorf("unmarshal accounts: %w", err)
	}
	return accounts, nil
}

// BalanceAt returns an account balance in minor units.
func (c *Client) BalanceAt(ctx context.Context, addr insurance.Address) (*big.Int, error) {
	s, err := c.callString(ctx, "eth_getBalance", []any{addr.String(), "latest"})
	if err != nil {
		return nil, err
	}
	return parseHexBig(s)
}

// txReceipt is the subset of an Ethereum receipt this layer consumes.
type txReceipt struct {
	Status      string `json:"status"`
	BlockNumber string `json:"blockNumber"`
}

// TransactionReceipt returns the receipt for a mined transaction, or nil
// while the transaction is still pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*txReceipt, error) {
	result, err := c.Call(ctx, "eth_getTransactionReceipt", []any{txHash})
	if err != nil {
		return nil, err
	}
	if string(result) == "null" {
		return nil, nil
	}
	var r txReceipt
	if err := json.Unmarshal(result, &r); err != nil {
		return nil, fmt.Errorf("unmarshal receipt: %w", err)
	}
	return &r, nil
}

func parseHexUint(s string) (uint64, error) {
	v, err := parseHexBig(s)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

func parseHexBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("malformed quantity %q", s)
	}
	return v, nil
}

// =============================================================================
// RPC-Backed Contract Gateway
// =============================================================================

// confirmPollInterval paces the wait for the first confirmation.
const confirmPollInterval = 2 * time.Second

// Contract implements Gateway against a deployed contract through Client.
type Contract struct {
	client   *Client
	address  string            // contract address
	from     insurance.Address // node-managed signing account
}

// NewContract binds a gateway to a deployed contract. from is the
// node-managed account used for writes; reads need no account.
func NewContract(client *Client, contractAddress string, from insurance.Address) *Contract {
	return &Contract{client: client, address: contractAddress, from: from}
}

// ethCall performs a read-only contract call and returns the raw return
// data window.
func (g *Contract) ethCall(ctx context.Context, op, data string) (returnData, error) {
	result, err := g.client.Call(ctx, "eth_call", []any{
		map[string]string{"to": g.address, "data": data},
		"latest",
	})
	if err != nil {
		return returnData{}, wrapNodeError(op, err)
	}
	var hexData string
	if err := json.Unmarshal(result, &hexData); err != nil {
		return returnData{}, &insurance.LedgerError{Op: op, Reason: err.Error()}
	}
	rd, err := parseReturnData(hexData)
	if err != nil {
		return returnData{}, &insurance.LedgerError{Op: op, Reason: err.Error()}
	}
	return rd, nil
}

func (g *Contract) GetActivePlans(ctx context.Context) ([]insurance.Plan, error) {
	rd, err := g.ethCall(ctx, "getActivePlans", encodeCall(selGetActivePlans))
	if err != nil {
		return nil, err
	}
	plans, err := decodePlanArray(rd)
	if err != nil {
		return nil, &insurance.LedgerError{Op: "getActivePlans", Reason: err.Error()}
	}
	return plans, nil
}

func (g *Contract) GetPlanDetails(ctx context.Context, id insurance.PlanID) (insurance.Plan, error) {
	data := encodeCall(selGetPlanDetails, uintWord(new(big.Int).SetUint64(uint64(id))))
	rd, err := g.ethCall(ctx, "getPlanDetails", data)
	if err != nil {
		return insurance.Plan{}, err
	}
	// The tuple contains strings, so it arrives behind an offset word.
	tuple, terr := rd.tail(0)
	if terr != nil {
		return insurance.Plan{}, &insurance.LedgerError{Op: "getPlanDetails", Reason: terr.Error()}
	}
	plan, derr := decodePlan(tuple, id)
	if derr != nil {
		return insurance.Plan{}, &insurance.LedgerError{Op: "getPlanDetails", Reason: derr.Error()}
	}
	return plan, nil
}

func (g *Contract) GetPolicyDetails(ctx context.Context, id insurance.PolicyID) (insurance.Policy, error) {
	data := encodeCall(selGetPolicyDetails, uintWord(new(big.Int).SetUint64(uint64(id))))
	rd, err := g.ethCall(ctx, "getPolicyDetails", data)
	if err != nil {
		return insurance.Policy{}, err
	}
	policy, derr := decodePolicy(rd, id)
	if derr != nil {
		return insurance.Policy{}, &insurance.LedgerError{Op: "getPolicyDetails", Reason: derr.Error()}
	}
	return policy, nil
}

func (g *Contract) GetUserPolicies(ctx context.Context, addr insurance.Address) ([]insurance.PolicyID, error) {
	data := encodeCall(selGetUserPolicies, addressWord(addr))
	rd, err := g.ethCall(ctx, "getUserPolicies", data)
	if err != nil {
		return nil, err
	}
	raw, derr := decodeUintArray(rd)
	if derr != nil {
		return nil, &insurance.LedgerError{Op: "getUserPolicies", Reason: derr.Error()}
	}
	ids := make([]insurance.PolicyID, len(raw))
	for i, v := range raw {
		ids[i] = insurance.PolicyID(v.Uint64())
	}
	return ids, nil
}

func (g *Contract) CalculatePremium(ctx context.Context, id insurance.PlanID, people int) (*big.Int, error) {
	if people < 1 {
		return nil, &insurance.InvalidCoverageCountError{People: people}
	}
	data := encodeCall(selCalculatePremium,
		uintWord(new(big.Int).SetUint64(uint64(id))),
		uintWord(big.NewInt(int64(people))),
	)
	rd, err := g.ethCall(ctx, "calculatePremium", data)
	if err != nil {
		return nil, err
	}
	premium, derr := rd.uint(0)
	if derr != nil {
		return nil, &insurance.LedgerError{Op: "calculatePremium", Reason: derr.Error()}
	}
	return premium, nil
}

// =============================================================================
// WRITES
// =============================================================================

func (g *Contract) PurchasePolicy(ctx context.Context, id insurance.PlanID, people int, value *big.Int) (Receipt, error) {
	data := encodeCall(selPurchasePolicy,
		uintWord(new(big.Int).SetUint64(uint64(id))),
		uintWord(big.NewInt(int64(people))),
	)
	receipt, err := g.submit(ctx, "purchasePolicy", data, value)
	if err != nil {
		return Receipt{}, err
	}

	// The new policy id is the tail of the holder's listing after the
	// write confirms.
	ids, err := g.GetUserPolicies(ctx, g.from)
	if err == nil && len(ids) > 0 {
		receipt.PolicyID = ids[len(ids)-1]
	}
	return receipt, nil
}

func (g *Contract) RenewPolicy(ctx context.Context, id insurance.PolicyID, value *big.Int) (Receipt, error) {
	data := encodeCall(selRenewPolicy, uintWord(new(big.Int).SetUint64(uint64(id))))
	receipt, err := g.submit(ctx, "renewPolicy", data, value)
	if err != nil {
		return Receipt{}, err
	}
	receipt.PolicyID = id
	return receipt, nil
}

func (g *Contract) CancelPolicy(ctx context.Context, id insurance.PolicyID) (Receipt, error) {
	data := encodeCall(selCancelPolicy, uintWord(new(big.Int).SetUint64(uint64(id))))
	receipt, err := g.submit(ctx, "cancelPolicy", data, nil)
	if err != nil {
		return Receipt{}, err
	}
	receipt.PolicyID = id
	return receipt, nil
}

// submit sends a transaction and waits for its first confirmation.
func (g *Contract) submit(ctx context.Context, op, data string, value *big.Int) (Receipt, error) {
	if g.from.IsZero() {
		return Receipt{}, insurance.ErrNotConnected
	}

	tx := map[string]string{
		"from": g.from.String(),
		"to":   g.address,
		"data": data,
	}
	if value != nil && value.Sign() > 0 {
		tx["value"] = "0x" + value.Text(16)
	}

	result, err := g.client.Call(ctx, "eth_sendTransaction", []any{tx})
	if err != nil {
		return Receipt{}, wrapNodeError(op, err)
	}
	var txHash string
	if err := json.Unmarshal(result, &txHash); err != nil {
		return Receipt{}, &insurance.LedgerError{Op: op, Reason: err.Error()}
	}

	return g.waitMined(ctx, op, txHash)
}

// waitMined polls until the transaction has its first confirmation.
func (g *Contract) waitMined(ctx context.Context, op, txHash string) (Receipt, error) {
	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.client.TransactionReceipt(ctx, txHash)
		if err != nil {
			return Receipt{}, wrapNodeError(op, err)
		}
		if receipt != nil {
			if receipt.Status == "0x0" {
				return Receipt{}, &insurance.LedgerError{Op: op, Reason: "transaction reverted: " + txHash}
			}
			block, _ := parseHexUint(receipt.BlockNumber)
			return Receipt{TxHash: txHash, BlockNumber: block}, nil
		}

		select {
		case <-ctx.Done():
			return Receipt{}, wrapNodeError(op, ctx.Err())
		case <-ticker.C:
		}
	}
}

// wrapNodeError maps node errors to the domain taxonomy. User rejection
// (EIP-1193 code 4001) keeps its own identity so the wallet layer can
// leave the session untouched.
func wrapNodeError(op string, err error) error {
	if rpcErr, ok := err.(*RPCError); ok && rpcErr.Code == 4001 {
		return fmt.Errorf("%s: %w", op, insurance.ErrUserRejected)
	}
	return &insurance.LedgerError{Op: op, Reason: err.Error()}
}
