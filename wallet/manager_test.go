/*
manager_test.go - Connection state machine transitions

CORE DESIGN:
- The MemoryBridge scripts each failure mode; the memory ledger serves as
  the session-bound gateway. External events are asserted with Eventually
  since the loop applies them asynchronously.
*/
package wallet

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/coverage-engine/insurance"
	"github.com/warp/coverage-engine/ledger"
)

const (
	requiredChain = uint64(11155111)
	otherChain    = uint64(1)
)

var (
	holderA = insurance.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	holderB = insurance.Address("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func testChain() ChainParams {
	return ChainParams{
		ChainID:          requiredChain,
		Name:             "Sepolia Testnet",
		CurrencySymbol:   "ETH",
		CurrencyDecimals: 18,
	}
}

func memoryFactory() GatewayFactory {
	return func(account insurance.Address, _ uint64) ledger.Gateway {
		return ledger.NewMemory(account, ledger.SeedPlans())
	}
}

func newTestManager(t *testing.T, bridge Bridge, factory GatewayFactory) *Manager {
	t.Helper()
	m, err := NewManager(Config{Bridge: bridge, RequiredChain: testChain(), NewGateway: factory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// =============================================================================
// CONNECT SEQUENCE
// =============================================================================

func TestConnect_HappyPath(t *testing.T) {
	bridge := NewMemoryBridge(MemoryBridgeConfig{Accounts: []insurance.Address{holderA}, ChainID: requiredChain})
	bridge.SetBalance(holderA, big.NewInt(5000))
	m := newTestManager(t, bridge, memoryFactory())

	require.NoError(t, m.Connect(context.Background()))

	s := m.Session()
	require.Equal(t, StateConnected, s.State)
	require.Equal(t, holderA, s.Account)
	require.Equal(t, requiredChain, s.ChainID)
	require.Equal(t, "5000", s.Balance.String())
	require.NoError(t, s.LastErr)

	_, err := m.Gateway()
	require.NoError(t, err)
}

func TestConnect_WalletUnavailable(t *testing.T) {
	bridge := NewMemoryBridge(MemoryBridgeConfig{Accounts: []insurance.Address{holderA}, ChainID: requiredChain})
	bridge.SetAvailable(false)
	m := newTestManager(t, bridge, memoryFactory())

	err := m.Connect(context.Background())
	require.ErrorIs(t, err, insurance.ErrWalletUnavailable)

	s := m.Session()
	require.Equal(t, StateDisconnected, s.State)
	require.ErrorIs(t, s.LastErr, insurance.ErrWalletUnavailable)
}

func TestConnect_NoAccounts(t *testing.T) {
	bridge := NewMemoryBridge(MemoryBridgeConfig{Accounts: nil, ChainID: requiredChain})
	m := newTestManager(t, bridge, memoryFactory())

	err := m.Connect(context.Background())
	require.ErrorIs(t, err, insurance.ErrNoAccounts)
	require.Equal(t, StateDisconnected, m.Session().State)
}

func TestConnect_SwitchesToRequiredChain(t *testing.T) {
	// GIVEN: a wallet on the wrong chain that knows the required one
	// WHEN: Connecting
	// THEN: State is Connected with the session on the required chain

	bridge := NewMemoryBridge(MemoryBridgeConfig{Accounts: []insurance.Address{holderA}, ChainID: otherChain})
	bridge.knownChains[requiredChain] = true
	m := newTestManager(t, bridge, memoryFactory())

	require.NoError(t, m.Connect(context.Background()))

	s := m.Session()
	require.Equal(t, StateConnected, s.State)
	require.Equal(t, requiredChain, s.ChainID)
}

func TestConnect_RegistersUnknownChainThenRetries(t *testing.T) {
	// The wallet has never seen the required chain: register it, then the
	// retried switch succeeds.
	bridge := NewMemoryBridge(MemoryBridgeConfig{Accounts: []insurance.Address{holderA}, ChainID: otherChain})
	m := newTestManager(t, bridge, memoryFactory())

	require.NoError(t, m.Connect(context.Background()))
	require.Equal(t, requiredChain, m.Session().ChainID)
}

func TestConnect_WrongNetworkWhenSwitchFails(t *testing.T) {
	bridge := NewMemoryBridge(MemoryBridgeConfig{Accounts: []insurance.Address{holderA}, ChainID: otherChain})
	bridge.SetSwitchErr(errors.New("switch refused"))
	m := newTestManager(t, bridge, memoryFactory())

	err := m.Connect(context.Background())
	require.ErrorIs(t, err, insurance.ErrWrongNetwork)
	require.Equal(t, StateDisconnected, m.Session().State)
}

func TestConnect_WrongNetworkWhenAddChainFails(t *testing.T) {
	bridge := NewMemoryBridge(MemoryBridgeConfig{Accounts: []insurance.Address{holderA}, ChainID: otherChain})
	bridge.SetAddChainErr(errors.New("user declined registration"))
	m := newTestManager(t, bridge, memoryFactory())

	err := m.Connect(context.Background())
	require.ErrorIs(t, err, insurance.ErrWrongNetwork)
}

func TestConnect_UserRejectedAccountRequest(t *testing.T) {
	bridge := NewMemoryBridge(MemoryBridgeConfig{Accounts: []insurance.Address{holderA}, ChainID: requiredChain})
	bridge.SetRequestAccountsErr(insurance.ErrUserRejected)
	m := newTestManager(t, bridge, memoryFactory())

	err := m.Connect(context.Background())
	require.ErrorIs(t, err, insurance.ErrUserRejected)
	require.Equal(t, StateDisconnected, m.Session().State)
}

// =============================================================================
// EXTERNAL EVENTS
// =============================================================================

func TestEvent_EmptyAccountListDisconnects(t *testing.T) {
	bridge := NewMemoryBridge(MemoryBridgeConfig{Accounts: []insurance.Address{holderA}, ChainID: requiredChain})
	m := newTestManager(t, bridge, memoryFactory())
	require.NoError(t, m.Connect(context.Background()))

	bridge.EmitAccountsChanged(nil)

	require.Eventually(t, func() bool {
		return m.Session().State == StateDisconnected
	}, time.Second, 5*time.Millisecond)
}

func TestEvent_AccountSwitchUpdatesSessionInPlace(t *testing.T) {
	bridge := NewMemoryBridge(MemoryBridgeConfig{Accounts: []insurance.Address{holderA}, ChainID: requiredChain})
	bridge.SetBalance(holderA, big.NewInt(100))
	bridge.SetBalance(holderB, big.NewInt(777))
	m := newTestManager(t, bridge, memoryFactory())
	require.NoError(t, m.Connect(context.Background()))

	bridge.EmitAccountsChanged([]insurance.Address{holderB})

	require.Eventually(t, func() bool {
		s := m.Session()
		return s.State == StateConnected && s.Account == holderB && s.Balance.String() == "777"
	}, time.Second, 5*time.Millisecond)
}

func TestEvent_ChainChangeIsFatalToSession(t *testing.T) {
	bridge := NewMemoryBridge(MemoryBridgeConfig{Accounts: []insurance.Address{holderA}, ChainID: requiredChain})
	m := newTestManager(t, bridge, memoryFactory())
	require.NoError(t, m.Connect(context.Background()))

	bridge.EmitChainChanged(otherChain)

	require.Eventually(t, func() bool {
		s := m.Session()
		return s.State == StateDisconnected && errors.Is(s.LastErr, insurance.ErrWrongNetwork)
	}, time.Second, 5*time.Millisecond)

	// Reconnect works once the wallet is back on a switchable footing.
	require.NoError(t, m.Connect(context.Background()))
	require.Equal(t, StateConnected, m.Session().State)
}

// =============================================================================
// WRITE SERIALIZATION
// =============================================================================

// scriptedGateway wraps the memory ledger with controllable write behavior.
type scriptedGateway struct {
	*ledger.Memory
	started     chan struct{}
	release     chan struct{}
	purchaseErr error
	startOnce   sync.Once
}

func (g *scriptedGateway) PurchasePolicy(ctx context.Context, id insurance.PlanID, people int, value *big.Int) (ledger.Receipt, error) {
	if g.purchaseErr != nil {
		return ledger.Receipt{}, g.purchaseErr
	}
	if g.started != nil {
		g.startOnce.Do(func() { close(g.started) })
		<-g.release
	}
	return g.Memory.PurchasePolicy(ctx, id, people, value)
}

func TestWrite_SecondWriteRejectedWhileFirstInFlight(t *testing.T) {
	// GIVEN: a purchase whose confirmation wait is outstanding
	// WHEN: A second write arrives
	// THEN: It is rejected with WriteInProgress, not queued

	gw := &scriptedGateway{
		Memory:  ledger.NewMemory(holderA, ledger.SeedPlans()),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	bridge := NewMemoryBridge(MemoryBridgeConfig{Accounts: []insurance.Address{holderA}, ChainID: requiredChain})
	m := newTestManager(t, bridge, func(insurance.Address, uint64) ledger.Gateway { return gw })
	require.NoError(t, m.Connect(context.Background()))

	premium, err := gw.CalculatePremium(context.Background(), 0, 1)
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, err := m.Purchase(context.Background(), 0, 1, premium)
		firstDone <- err
	}()
	<-gw.started

	_, err = m.Cancel(context.Background(), 1)
	require.ErrorIs(t, err, insurance.ErrWriteInProgress)

	close(gw.release)
	require.NoError(t, <-firstDone)

	// Slot released: the next write goes through (and reverts on its own
	// merits, not on the lock).
	_, err = m.Renew(context.Background(), 999, premium)
	require.NotErrorIs(t, err, insurance.ErrWriteInProgress)
}

func TestWrite_UserRejectionReleasesLockAndKeepsSession(t *testing.T) {
	gw := &scriptedGateway{
		Memory:      ledger.NewMemory(holderA, ledger.SeedPlans()),
		purchaseErr: insurance.ErrUserRejected,
	}
	bridge := NewMemoryBridge(MemoryBridgeConfig{Accounts: []insurance.Address{holderA}, ChainID: requiredChain})
	bridge.SetBalance(holderA, big.NewInt(123))
	m := newTestManager(t, bridge, func(insurance.Address, uint64) ledger.Gateway { return gw })
	require.NoError(t, m.Connect(context.Background()))

	before := m.Session()
	_, err := m.Purchase(context.Background(), 0, 1, big.NewInt(1))
	require.ErrorIs(t, err, insurance.ErrUserRejected)

	after := m.Session()
	require.Equal(t, before.State, after.State)
	require.Equal(t, before.Account, after.Account)
	require.Equal(t, before.Balance.String(), after.Balance.String())

	// Immediate retry is permitted: the slot was released.
	gw.purchaseErr = nil
	premium, err := gw.CalculatePremium(context.Background(), 0, 1)
	require.NoError(t, err)
	_, err = m.Purchase(context.Background(), 0, 1, premium)
	require.NoError(t, err)
}

func TestWrite_RequiresConnection(t *testing.T) {
	bridge := NewMemoryBridge(MemoryBridgeConfig{Accounts: []insurance.Address{holderA}, ChainID: requiredChain})
	m := newTestManager(t, bridge, memoryFactory())

	_, err := m.Purchase(context.Background(), 0, 1, big.NewInt(1))
	require.ErrorIs(t, err, insurance.ErrNotConnected)
}
