/*
Package insurance provides the core policy and premium domain logic.

PURPOSE:
  This package contains the off-chain mirror of the on-chain insurance
  contract's domain model: plans, policies, premium calculation, lifecycle
  status, and per-holder statistics. Everything here is pure computation
  over data fetched from the ledger; nothing in this package performs I/O.

KEY CONCEPTS IN THIS FILE (types.go):
  - Address: A ledger account address (0x-prefixed, 40 hex chars)
  - Plan: A template offering selectable by a holder (read-only client-side)
  - Policy: A purchased instance of a Plan bound to a holder
  - PolicyStatus: Derived lifecycle state, never stored
  - HolderStats: Aggregated view over a holder's policy set

DESIGN PRINCIPLES:
  1. Exactness: Monetary values are *big.Int minor units on the
     authoritative path; decimal strings appear only at display boundaries.
  2. Purity: Status and premium are functions of their inputs. Callers pass
     "now" explicitly; this package never reads the clock.
  3. Type Safety: PlanID and PolicyID are distinct types so they cannot be
     mixed up in gateway calls.

SEE ALSO:
  - premium.go: Discount schedule and premium calculation
  - status.go: Lifecycle status resolution
  - stats.go: Holder statistics aggregation
  - money.go: Minor-unit/display-unit conversion
*/
package insurance

import (
	"fmt"
	"math/big"
	"strings"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// PlanID identifies a plan by its position in the active-plans listing.
type PlanID uint64

// PolicyID is a ledger-assigned, monotonically increasing policy identifier.
type PolicyID uint64

// Address is a ledger account address in canonical lower-case hex form.
type Address string

const addressHexLen = 40

// ParseAddress validates and canonicalizes a 0x-prefixed hex address.
// Parsing is case-insensitive; the canonical form is lower-case.
func ParseAddress(s string) (Address, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", &InvalidAddressError{Input: s, Reason: "missing 0x prefix"}
	}
	hexPart := s[2:]
	if len(hexPart) != addressHexLen {
		return "", &InvalidAddressError{Input: s, Reason: fmt.Sprintf("expected %d hex chars, got %d", addressHexLen, len(hexPart))}
	}
	for _, c := range hexPart {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return "", &InvalidAddressError{Input: s, Reason: "non-hex character"}
		}
	}
	return Address("0x" + strings.ToLower(hexPart)), nil
}

func (a Address) String() string { return string(a) }

// IsZero reports whether the address is empty (no account bound).
func (a Address) IsZero() bool { return a == "" }

// =============================================================================
// PLAN - Template offering, created/deactivated only by the contract owner
// =============================================================================

type Plan struct {
	ID          PlanID
	Name        string
	Category    string
	Description string
	BasePremium *big.Int // minor units, non-negative
	Active      bool
}

// =============================================================================
// POLICY - Purchased instance of a plan
// =============================================================================

type Policy struct {
	ID            PolicyID
	PlanID        PlanID
	Policyholder  Address
	StartDate     int64 // unix seconds
	EndDate       int64 // unix seconds, always > StartDate
	PeopleCovered int   // >= 1
	Premium       *big.Int // minor units actually charged
	Active        bool     // false only after explicit cancellation
}

// =============================================================================
// POLICY STATUS - Derived lifecycle state
// =============================================================================

type PolicyStatus string

const (
	StatusActive    PolicyStatus = "active"
	StatusExpired   PolicyStatus = "expired"
	StatusCancelled PolicyStatus = "cancelled"
)

// =============================================================================
// HOLDER STATS - Aggregated, never persisted
// =============================================================================

type HolderStats struct {
	Address           Address
	TotalPolicies     int
	ActivePolicies    int
	ExpiredPolicies   int
	CancelledPolicies int
	TotalPremiumPaid  *big.Int // minor units, cumulative across all policies
}
