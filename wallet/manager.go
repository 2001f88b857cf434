/*
manager.go - Connection state machine

PURPOSE:
  Drives Disconnected -> Connecting -> Connected over a Bridge and owns the
  single session: account, chain, balance, and the session-bound Gateway.
  External wallet events arrive over the bridge's channel and are applied
  by one goroutine, so transitions are processed in the order they occur.

CONNECT SEQUENCE (any failure leaves the state Disconnected with the error
recorded on the session):
  1. Detect provider            -> ErrWalletUnavailable
  2. Request account access     -> ErrNoAccounts if empty
  3. Read current chain id
  4. Switch chain if required; register-then-retry on unknown chain;
     any failure             -> ErrWrongNetwork
  5. Build the session-bound Gateway via the injected factory
  6. Read and cache the account balance

WRITE SERIALIZATION:
  One write in flight per session. A second write is rejected with
  ErrWriteInProgress rather than queued, so the wallet never sees
  conflicting nonces. Every outcome - success, revert, user rejection -
  releases the slot; a user rejection additionally leaves the session
  exactly as it was.

OWNERSHIP:
  A Manager is an explicit handle constructed once per logical client and
  passed to callers. There is no package-level session.

SEE ALSO:
  - bridge.go: The provider surface and event types
  - ledger/gateway.go: What the factory must produce
*/
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/warp/coverage-engine/insurance"
	"github.com/warp/coverage-engine/ledger"
)

// =============================================================================
// STATE & SESSION
// =============================================================================

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Session is a point-in-time snapshot of the connection.
type Session struct {
	State   State
	Account insurance.Address
	ChainID uint64
	Balance *big.Int
	LastErr error
}

// Connected reports whether gateway calls can proceed.
func (s Session) Connected() bool { return s.State == StateConnected }

// GatewayFactory builds a contract handle bound to a session.
type GatewayFactory func(account insurance.Address, chainID uint64) ledger.Gateway

// Config wires a Manager.
type Config struct {
	Bridge        Bridge
	RequiredChain ChainParams
	NewGateway    GatewayFactory
}

// =============================================================================
// MANAGER
// =============================================================================

type Manager struct {
	bridge   Bridge
	required ChainParams
	factory  GatewayFactory

	mu      sync.RWMutex
	state   State
	account insurance.Address
	chainID uint64
	balance *big.Int
	lastErr error
	gateway ledger.Gateway

	connectMu sync.Mutex // serializes Connect attempts
	writeSlot chan struct{}

	loopDone chan struct{}
}

// NewManager creates a manager in the Disconnected state and starts its
// event loop.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Bridge == nil {
		return nil, fmt.Errorf("bridge required")
	}
	if cfg.NewGateway == nil {
		return nil, fmt.Errorf("gateway factory required")
	}

	m := &Manager{
		bridge:    cfg.Bridge,
		required:  cfg.RequiredChain,
		factory:   cfg.NewGateway,
		state:     StateDisconnected,
		writeSlot: make(chan struct{}, 1),
		loopDone:  make(chan struct{}),
	}
	go m.eventLoop()
	return m, nil
}

// Session returns a snapshot of the current session.
func (m *Manager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Session{
		State:   m.state,
		Account: m.account,
		ChainID: m.chainID,
		LastErr: m.lastErr,
	}
	if m.balance != nil {
		s.Balance = new(big.Int).Set(m.balance)
	}
	return s
}

// Gateway returns the session-bound contract handle, or ErrNotConnected.
func (m *Manager) Gateway() (ledger.Gateway, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateConnected || m.gateway == nil {
		return nil, insurance.ErrNotConnected
	}
	return m.gateway, nil
}

// =============================================================================
// CONNECT / DISCONNECT
// =============================================================================

// Connect runs the full connection sequence. No timeout is imposed here;
// a wallet call that never resolves is bounded only by ctx and by the
// provider's own rejection behavior.
func (m *Manager) Connect(ctx context.Context) error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.setState(StateConnecting, nil)

	if err := m.connect(ctx); err != nil {
		m.mu.Lock()
		m.clearSessionLocked()
		m.lastErr = err
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) connect(ctx context.Context) error {
	if !m.bridge.Available() {
		return insurance.ErrWalletUnavailable
	}

	accounts, err := m.bridge.RequestAccounts(ctx)
	if err != nil {
		if errors.Is(err, insurance.ErrUserRejected) {
			return err
		}
		return fmt.Errorf("request accounts: %w", err)
	}
	if len(accounts) == 0 {
		return insurance.ErrNoAccounts
	}
	account := accounts[0]

	chainID, err := m.bridge.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}
	if chainID != m.required.ChainID {
		if err := m.switchToRequiredChain(ctx); err != nil {
			return fmt.Errorf("%w: %v", insurance.ErrWrongNetwork, err)
		}
		chainID = m.required.ChainID
	}

	gateway := m.factory(account, chainID)

	balance, err := m.bridge.Balance(ctx, account)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}

	m.mu.Lock()
	m.state = StateConnected
	m.account = account
	m.chainID = chainID
	m.balance = balance
	m.gateway = gateway
	m.lastErr = nil
	m.mu.Unlock()
	return nil
}

// switchToRequiredChain asks the wallet to move, registering the chain
// first if the wallet has never seen it.
func (m *Manager) switchToRequiredChain(ctx context.Context) error {
	err := m.bridge.SwitchChain(ctx, m.required.ChainID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUnknownChain) {
		return err
	}
	if err := m.bridge.AddChain(ctx, m.required); err != nil {
		return err
	}
	return m.bridge.SwitchChain(ctx, m.required.ChainID)
}

// Disconnect clears the session.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearSessionLocked()
}

func (m *Manager) clearSessionLocked() {
	m.state = StateDisconnected
	m.account = ""
	m.chainID = 0
	m.balance = nil
	m.gateway = nil
	m.lastErr = nil
}

func (m *Manager) setState(s State, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.lastErr = err
}

// Close stops the event loop and releases the bridge.
func (m *Manager) Close() error {
	err := m.bridge.Close()
	<-m.loopDone
	return err
}

// =============================================================================
// EVENT LOOP
// =============================================================================

// eventLoop applies external wallet events one at a time, preserving the
// order the provider emitted them.
func (m *Manager) eventLoop() {
	defer close(m.loopDone)

	for ev := range m.bridge.Events() {
		switch e := ev.(type) {
		case AccountsChangedEvent:
			m.onAccountsChanged(e.Accounts)
		case ChainChangedEvent:
			m.onChainChanged(e.ChainID)
		}
	}
}

func (m *Manager) onAccountsChanged(accounts []insurance.Address) {
	if len(accounts) == 0 {
		m.Disconnect()
		return
	}

	m.mu.Lock()
	if m.state != StateConnected || accounts[0] == m.account {
		m.mu.Unlock()
		return
	}
	account := accounts[0]
	m.account = account
	m.gateway = m.factory(account, m.chainID)
	m.mu.Unlock()

	// Balance refresh is best effort; a failure leaves the old reading.
	if balance, err := m.bridge.Balance(context.Background(), account); err == nil {
		m.mu.Lock()
		if m.account == account {
			m.balance = balance
		}
		m.mu.Unlock()
	}
}

// onChainChanged tears the session down: the gateway handle is bound to
// the session's chain, so a chain move invalidates it wholesale.
func (m *Manager) onChainChanged(chainID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return
	}
	m.clearSessionLocked()
	m.lastErr = fmt.Errorf("%w: chain changed to %d, reconnect required", insurance.ErrWrongNetwork, chainID)
}

// =============================================================================
// SERIALIZED WRITES
// =============================================================================

// acquireWrite claims the single write slot without blocking.
func (m *Manager) acquireWrite() error {
	select {
	case m.writeSlot <- struct{}{}:
		return nil
	default:
		return insurance.ErrWriteInProgress
	}
}

func (m *Manager) releaseWrite() { <-m.writeSlot }

// Purchase buys a policy through the session gateway, serialized with all
// other writes on this session.
func (m *Manager) Purchase(ctx context.Context, plan insurance.PlanID, people int, value *big.Int) (ledger.Receipt, error) {
	gw, err := m.Gateway()
	if err != nil {
		return ledger.Receipt{}, err
	}
	if err := m.acquireWrite(); err != nil {
		return ledger.Receipt{}, err
	}
	defer m.releaseWrite()
	return gw.PurchasePolicy(ctx, plan, people, value)
}

// Renew extends a policy through the session gateway.
func (m *Manager) Renew(ctx context.Context, policy insurance.PolicyID, value *big.Int) (ledger.Receipt, error) {
	gw, err := m.Gateway()
	if err != nil {
		return ledger.Receipt{}, err
	}
	if err := m.acquireWrite(); err != nil {
		return ledger.Receipt{}, err
	}
	defer m.releaseWrite()
	return gw.RenewPolicy(ctx, policy, value)
}

// Cancel cancels a policy through the session gateway.
func (m *Manager) Cancel(ctx context.Context, policy insurance.PolicyID) (ledger.Receipt, error) {
	gw, err := m.Gateway()
	if err != nil {
		return ledger.Receipt{}, err
	}
	if err := m.acquireWrite(); err != nil {
		return ledger.Receipt{}, err
	}
	defer m.releaseWrite()
	return gw.CancelPolicy(ctx, policy)
}
