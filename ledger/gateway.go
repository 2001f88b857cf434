/*
Package ledger provides the fixed read/write interface to the on-chain
insurance contract.

PURPOSE:
  The Gateway is the only path between this system and the authoritative
  ledger. Reads return current contract state immediately; writes submit a
  transaction and return only after it reaches its first confirmation.

IMPLEMENTATIONS:
  - Memory (memory.go): Full contract simulation for tests and dev mode.
  - Contract over Client (rpc.go): JSON-RPC against a real node.

SEE ALSO:
  - wallet/manager.go: Builds a session-bound Gateway on connect
  - query/orchestrator.go: Fans reads out concurrently
*/
package ledger

import (
	"context"
	"math/big"

	"github.com/warp/coverage-engine/insurance"
)

// =============================================================================
// Gateway Interface
// =============================================================================

// Reader covers the contract's view calls. No signer is required; any
// provider-backed handle can serve them.
type Reader interface {
	// GetActivePlans returns the contract's active plan listing. Plan IDs
	// are positions in this listing.
	GetActivePlans(ctx context.Context) ([]insurance.Plan, error)

	// GetPlanDetails returns a single plan.
	GetPlanDetails(ctx context.Context, id insurance.PlanID) (insurance.Plan, error)

	// GetPolicyDetails returns a single policy record.
	GetPolicyDetails(ctx context.Context, id insurance.PolicyID) (insurance.Policy, error)

	// GetUserPolicies returns the policy ids owned by an address.
	GetUserPolicies(ctx context.Context, addr insurance.Address) ([]insurance.PolicyID, error)

	// CalculatePremium is the ledger-authoritative premium mirror.
	CalculatePremium(ctx context.Context, id insurance.PlanID, people int) (*big.Int, error)
}

// Writer covers the contract's state-changing calls. Each returns only
// after the submitted transaction reaches its first confirmation. Once
// submitted for signing, a write cannot be cancelled by this layer.
type Writer interface {
	// PurchasePolicy buys a policy, sending value minor units. The value
	// must equal or exceed the contract's own premium computation.
	PurchasePolicy(ctx context.Context, id insurance.PlanID, people int, value *big.Int) (Receipt, error)

	// RenewPolicy extends an expired (but not cancelled) policy.
	RenewPolicy(ctx context.Context, id insurance.PolicyID, value *big.Int) (Receipt, error)

	// CancelPolicy flips the policy's active flag off. Terminal.
	CancelPolicy(ctx context.Context, id insurance.PolicyID) (Receipt, error)
}

// Gateway is the full session-bound contract handle.
type Gateway interface {
	Reader
	Writer
}

// Receipt describes a confirmed write.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	PolicyID    insurance.PolicyID
}
