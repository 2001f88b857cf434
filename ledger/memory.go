/*
memory.go - In-memory contract simulation

PURPOSE:
  Implements the full Gateway against in-process state with the same revert
  rules as the on-chain contract. Used by the test suites and by the server
  in dev mode (no RPC endpoint configured), the same way the real contract
  would behave one confirmation later.

REVERT RULES MIRRORED:
  - purchase: plan must exist and be active, people in [1,5],
    value >= contract-computed premium
  - renew:    policy must exist and be active (Cancelled is terminal),
    value >= stored premium
  - cancel:   policy must exist and be active (no double cancel)

SEE ALSO:
  - gateway.go: Interface definitions
  - insurance/premium.go: The shared premium formula
*/
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"sync"
	"time"

	"github.com/warp/coverage-engine/insurance"
)

// contract-side coverage bound; the client-side calculator itself has none.
const maxPeopleCovered = 5

// policyTerm is the coverage window granted per purchase or renewal.
const policyTerm = 365 * 24 * time.Hour

// Memory is an in-memory Gateway implementation.
type Memory struct {
	mu sync.RWMutex

	plans    []insurance.Plan
	policies map[insurance.PolicyID]insurance.Policy
	byHolder map[insurance.Address][]insurance.PolicyID

	caller      insurance.Address // bound account for writes
	nextID      insurance.PolicyID
	blockHeight uint64

	// Clock indirection so tests can control expiry.
	now func() time.Time
}

// NewMemory creates a simulation bound to the given caller account.
func NewMemory(caller insurance.Address, plans []insurance.Plan) *Memory {
	return &Memory{
		plans:    plans,
		policies: make(map[insurance.PolicyID]insurance.Policy),
		byHolder: make(map[insurance.Address][]insurance.PolicyID),
		caller:   caller,
		nextID:   1,
		now:      time.Now,
	}
}

// SetClock overrides the simulation clock.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SeedPlans returns the default development plan catalog.
func SeedPlans() []insurance.Plan {
	wei := func(s string) *big.Int {
		v, _ := new(big.Int).SetString(s, 10)
		return v
	}
	return []insurance.Plan{
		{ID: 0, Name: "Basic Care", Category: "Individual", Description: "Essential coverage for routine checkups and emergencies.", BasePremium: wei("10000000000000000"), Active: true},
		{ID: 1, Name: "Silver Shield", Category: "Family", Description: "Broader coverage including specialist visits and dental.", BasePremium: wei("25000000000000000"), Active: true},
		{ID: 2, Name: "Gold Guard", Category: "Family", Description: "Comprehensive coverage with low deductibles.", BasePremium: wei("50000000000000000"), Active: true},
		{ID: 3, Name: "Platinum Plus", Category: "Premium", Description: "Full coverage including international care.", BasePremium: wei("100000000000000000"), Active: true},
	}
}

// =============================================================================
// READS
// =============================================================================

func (m *Memory) GetActivePlans(_ context.Context) ([]insurance.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]insurance.Plan, 0, len(m.plans))
	for _, p := range m.plans {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) GetPlanDetails(_ context.Context, id insurance.PlanID) (insurance.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.planLocked(id)
}

func (m *Memory) planLocked(id insurance.PlanID) (insurance.Plan, error) {
	if int(id) >= len(m.plans) {
		return insurance.Plan{}, &insurance.LedgerError{Op: "getPlanDetails", Reason: "plan does not exist"}
	}
	return m.plans[id], nil
}

func (m *Memory) GetPolicyDetails(_ context.Context, id insurance.PolicyID) (insurance.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[id]
	if !ok {
		return insurance.Policy{}, &insurance.LedgerError{Op: "getPolicyDetails", Reason: "policy does not exist"}
	}
	return p, nil
}

func (m *Memory) GetUserPolicies(_ context.Context, addr insurance.Address) ([]insurance.PolicyID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byHolder[addr]
	out := make([]insurance.PolicyID, len(ids))
	copy(out, ids)
	return out, nil
}

func (m *Memory) CalculatePremium(_ context.Context, id insurance.PlanID, people int) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plan, err := m.planLocked(id)
	if err != nil {
		return nil, err
	}
	return insurance.CalculatePremium(plan.BasePremium, people)
}

// =============================================================================
// WRITES
// =============================================================================

func (m *Memory) PurchasePolicy(_ context.Context, id insurance.PlanID, people int, value *big.Int) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, err := m.planLocked(id)
	if err != nil {
		return Receipt{}, revert("purchasePolicy", "plan does not exist")
	}
	if !plan.Active {
		return Receipt{}, revert("purchasePolicy", "plan is not active")
	}
	if people < 1 || people > maxPeopleCovered {
		return Receipt{}, revert("purchasePolicy", "invalid number of people covered")
	}

	premium, err := insurance.CalculatePremium(plan.BasePremium, people)
	if err != nil {
		return Receipt{}, revert("purchasePolicy", err.Error())
	}
	if value == nil || value.Cmp(premium) < 0 {
		return Receipt{}, revert("purchasePolicy", "insufficient premium payment")
	}

	now := m.now().Unix()
	policy := insurance.Policy{
		ID:            m.nextID,
		PlanID:        id,
		Policyholder:  m.caller,
		StartDate:     now,
		EndDate:       now + int64(policyTerm.Seconds()),
		PeopleCovered: people,
		Premium:       premium,
		Active:        true,
	}
	m.policies[policy.ID] = policy
	m.byHolder[m.caller] = append(m.byHolder[m.caller], policy.ID)
	m.nextID++

	return m.receiptLocked(policy.ID), nil
}

func (m *Memory) RenewPolicy(_ context.Context, id insurance.PolicyID, value *big.Int) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	policy, ok := m.policies[id]
	if !ok {
		return Receipt{}, revert("renewPolicy", "policy does not exist")
	}
	if policy.Policyholder != m.caller {
		return Receipt{}, revert("renewPolicy", "not the policyholder")
	}
	if !policy.Active {
		return Receipt{}, revert("renewPolicy", "policy not active")
	}
	if value == nil || value.Cmp(policy.Premium) < 0 {
		return Receipt{}, revert("renewPolicy", "insufficient premium payment")
	}

	// Extend from whichever is later: now (lapsed policy) or the current
	// end date (early renewal).
	from := m.now().Unix()
	if policy.EndDate > from {
		from = policy.EndDate
	}
	policy.EndDate = from + int64(policyTerm.Seconds())
	m.policies[id] = policy

	return m.receiptLocked(id), nil
}

func (m *Memory) CancelPolicy(_ context.Context, id insurance.PolicyID) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	policy, ok := m.policies[id]
	if !ok {
		return Receipt{}, revert("cancelPolicy", "policy does not exist")
	}
	if policy.Policyholder != m.caller {
		return Receipt{}, revert("cancelPolicy", "not the policyholder")
	}
	if !policy.Active {
		return Receipt{}, revert("cancelPolicy", "policy not active")
	}

	policy.Active = false
	m.policies[id] = policy

	return m.receiptLocked(id), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func revert(op, reason string) error {
	return &insurance.LedgerError{Op: op, Reason: "execution reverted: " + reason}
}

func (m *Memory) receiptLocked(id insurance.PolicyID) Receipt {
	m.blockHeight++
	data := make([]byte, 16)
	binary.BigEndian.PutUint64(data[:8], uint64(id))
	binary.BigEndian.PutUint64(data[8:], m.blockHeight)
	hash := sha256.Sum256(data)
	return Receipt{
		TxHash:      "0x" + hex.EncodeToString(hash[:]),
		BlockNumber: m.blockHeight,
		PolicyID:    id,
	}
}
