/*
node.go - Bridge over a JSON-RPC node's managed accounts

PURPOSE:
  When the server signs its own writes, the "wallet" is an RPC node holding
  an unlocked account. A node cannot switch chains and pushes no account
  notifications over plain HTTP, so those parts of the Bridge contract
  degrade honestly: SwitchChain fails (surfacing as WrongNetwork upstream)
  and the event channel stays silent until Close.
*/
package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/warp/coverage-engine/insurance"
	"github.com/warp/coverage-engine/ledger"
)

// NodeBridge adapts a JSON-RPC client to the Bridge interface.
type NodeBridge struct {
	client *ledger.Client

	mu     sync.Mutex
	events chan Event
	closed bool
}

// NewNodeBridge wraps an RPC client. A nil client models an absent
// provider (Available reports false).
func NewNodeBridge(client *ledger.Client) *NodeBridge {
	return &NodeBridge{
		client: client,
		events: make(chan Event),
	}
}

func (b *NodeBridge) Available() bool { return b.client != nil }

func (b *NodeBridge) RequestAccounts(ctx context.Context) ([]insurance.Address, error) {
	raw, err := b.client.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	accounts := make([]insurance.Address, 0, len(raw))
	for _, s := range raw {
		addr, err := insurance.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("node returned malformed account: %w", err)
		}
		accounts = append(accounts, addr)
	}
	return accounts, nil
}

func (b *NodeBridge) ChainID(ctx context.Context) (uint64, error) {
	return b.client.ChainID(ctx)
}

// SwitchChain always fails: a node is pinned to its chain. The manager
// surfaces this as WrongNetwork, which is the right operator signal (fix
// the endpoint, not the session).
func (b *NodeBridge) SwitchChain(_ context.Context, chainID uint64) error {
	return fmt.Errorf("node endpoint cannot switch to chain %d", chainID)
}

func (b *NodeBridge) AddChain(_ context.Context, params ChainParams) error {
	return fmt.Errorf("node endpoint cannot register chain %d", params.ChainID)
}

func (b *NodeBridge) Balance(ctx context.Context, addr insurance.Address) (*big.Int, error) {
	return b.client.BalanceAt(ctx, addr)
}

func (b *NodeBridge) Events() <-chan Event { return b.events }

func (b *NodeBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	return nil
}
