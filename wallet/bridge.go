/*
Package wallet manages the session between a holder's wallet and the
required network.

PURPOSE:
  Every gateway call is gated by a ready session: an account, the required
  chain, and a contract handle bound to both. This package owns that
  session. The Bridge interface models the wallet surface (extension or
  node); the Manager drives the connection state machine over it.

KEY CONCEPTS IN THIS FILE (bridge.go):
  - Bridge: What a wallet provider can do (accounts, chain, balance)
  - Event: External notifications (account list changed, chain changed),
    delivered over a channel so the state machine processes them in order
  - ChainParams: What it takes to register the required chain with a
    wallet that does not know it yet

SEE ALSO:
  - manager.go: The state machine consuming this interface
  - memory.go: Scriptable in-process bridge for tests and dev mode
  - node.go: Bridge over a JSON-RPC node's managed accounts
*/
package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/warp/coverage-engine/insurance"
)

// ErrUnknownChain is returned by SwitchChain when the wallet does not know
// the requested chain (EIP-3085 territory: register it, then retry).
var ErrUnknownChain = errors.New("unrecognized chain")

// ChainParams describes a chain well enough to register it with a wallet.
type ChainParams struct {
	ChainID           uint64
	Name              string
	CurrencySymbol    string
	CurrencyDecimals  int
	RPCURLs           []string
	BlockExplorerURLs []string
}

// Bridge is the wallet provider surface the state machine drives.
type Bridge interface {
	// Available reports whether a wallet provider is present at all.
	Available() bool

	// RequestAccounts asks the wallet for account access. An empty result
	// means the wallet is locked or the user granted nothing.
	RequestAccounts(ctx context.Context) ([]insurance.Address, error)

	// ChainID returns the wallet's current chain.
	ChainID(ctx context.Context) (uint64, error)

	// SwitchChain asks the wallet to move to another chain. Returns
	// ErrUnknownChain if the wallet has never seen it.
	SwitchChain(ctx context.Context, chainID uint64) error

	// AddChain registers a chain with the wallet.
	AddChain(ctx context.Context, params ChainParams) error

	// Balance returns an account balance in minor units.
	Balance(ctx context.Context, addr insurance.Address) (*big.Int, error)

	// Events delivers external wallet notifications in order. The channel
	// closes when the bridge is closed.
	Events() <-chan Event

	// Close detaches listeners and releases the provider.
	Close() error
}

// =============================================================================
// EVENTS
// =============================================================================

// Event is an external wallet notification.
type Event interface{ walletEvent() }

// AccountsChangedEvent reports the wallet's new account list. An empty
// list means the user disconnected the wallet.
type AccountsChangedEvent struct {
	Accounts []insurance.Address
}

// ChainChangedEvent reports that the wallet moved to another chain. Fatal
// to the current session: the gateway handle is bound to the old chain.
type ChainChangedEvent struct {
	ChainID uint64
}

func (AccountsChangedEvent) walletEvent() {}
func (ChainChangedEvent) walletEvent()    {}
