/*
memory.go - Scriptable in-process wallet bridge

PURPOSE:
  Implements Bridge against plain state so the state machine can be tested
  and the server can run in dev mode without a wallet or node. Tests script
  failures (missing provider, locked wallet, rejected signatures, unknown
  chains) and emit external events on demand.
*/
package wallet

import (
	"context"
	"math/big"
	"sync"

	"github.com/warp/coverage-engine/insurance"
)

// MemoryBridge is an in-process Bridge implementation.
type MemoryBridge struct {
	mu sync.Mutex

	available   bool
	accounts    []insurance.Address
	chainID     uint64
	knownChains map[uint64]bool
	balances    map[insurance.Address]*big.Int

	// Scripted failures.
	requestAccountsErr error
	switchErr          error
	addChainErr        error

	events chan Event
	closed bool
}

// MemoryBridgeConfig seeds a MemoryBridge.
type MemoryBridgeConfig struct {
	Accounts []insurance.Address
	ChainID  uint64
}

// NewMemoryBridge creates an available bridge on the given chain.
func NewMemoryBridge(cfg MemoryBridgeConfig) *MemoryBridge {
	known := map[uint64]bool{cfg.ChainID: true}
	return &MemoryBridge{
		available:   true,
		accounts:    cfg.Accounts,
		chainID:     cfg.ChainID,
		knownChains: known,
		balances:    make(map[insurance.Address]*big.Int),
		events:      make(chan Event, 16),
	}
}

// =============================================================================
// SCRIPTING KNOBS
// =============================================================================

func (b *MemoryBridge) SetAvailable(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.available = v
}

func (b *MemoryBridge) SetRequestAccountsErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requestAccountsErr = err
}

func (b *MemoryBridge) SetSwitchErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.switchErr = err
}

func (b *MemoryBridge) SetAddChainErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addChainErr = err
}

func (b *MemoryBridge) SetBalance(addr insurance.Address, v *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] = v
}

// EmitAccountsChanged pushes an external account-list notification.
func (b *MemoryBridge) EmitAccountsChanged(accounts []insurance.Address) {
	b.mu.Lock()
	b.accounts = accounts
	b.mu.Unlock()
	b.events <- AccountsChangedEvent{Accounts: accounts}
}

// EmitChainChanged pushes an external chain-move notification.
func (b *MemoryBridge) EmitChainChanged(chainID uint64) {
	b.mu.Lock()
	b.chainID = chainID
	b.mu.Unlock()
	b.events <- ChainChangedEvent{ChainID: chainID}
}

// =============================================================================
// BRIDGE IMPLEMENTATION
// =============================================================================

func (b *MemoryBridge) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available
}

func (b *MemoryBridge) RequestAccounts(_ context.Context) ([]insurance.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.requestAccountsErr != nil {
		return nil, b.requestAccountsErr
	}
	out := make([]insurance.Address, len(b.accounts))
	copy(out, b.accounts)
	return out, nil
}

func (b *MemoryBridge) ChainID(_ context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chainID, nil
}

func (b *MemoryBridge) SwitchChain(_ context.Context, chainID uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.switchErr != nil {
		return b.switchErr
	}
	if !b.knownChains[chainID] {
		return ErrUnknownChain
	}
	b.chainID = chainID
	return nil
}

func (b *MemoryBridge) AddChain(_ context.Context, params ChainParams) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.addChainErr != nil {
		return b.addChainErr
	}
	b.knownChains[params.ChainID] = true
	return nil
}

func (b *MemoryBridge) Balance(_ context.Context, addr insurance.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.balances[addr]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (b *MemoryBridge) Events() <-chan Event { return b.events }

func (b *MemoryBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	return nil
}
