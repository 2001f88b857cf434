/*
errors.go - Centralized error types for the coverage domain

PURPOSE:
  All domain error types in one place for consistency and discoverability.
  Infrastructure packages (ledger, wallet, api) wrap these with their own
  context but classify through the helpers below.

ERROR CATEGORIES:
  1. Input errors      - Rejected before any ledger call
  2. Connection errors - Wallet/network failures, session stays Disconnected
  3. Ledger errors     - Read/write failures after a session is established

USAGE:
  Callers branch with errors.Is():

    if errors.Is(err, insurance.ErrUserRejected) {
        // leave session untouched, allow immediate retry
    }

SEE ALSO:
  - premium.go: Returns InvalidCoverageCountError
  - wallet/manager.go: Wraps the connection-phase sentinels
  - ledger/rpc.go: Wraps ErrLedgerCallFailed with revert reasons
*/
package insurance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidCoverageCount is returned when a premium is requested for
	// fewer than one covered person.
	ErrInvalidCoverageCount = errors.New("invalid coverage count")

	// ErrInvalidAddress is returned for malformed account addresses.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrNegativeBasePremium is returned when a plan carries a negative
	// base premium. The contract cannot produce one; seeing it means the
	// caller decoded garbage.
	ErrNegativeBasePremium = errors.New("negative base premium")

	// ErrWalletUnavailable is returned when no wallet extension/provider
	// can be detected.
	ErrWalletUnavailable = errors.New("wallet unavailable")

	// ErrNoAccounts is returned when the wallet reports zero accounts.
	ErrNoAccounts = errors.New("no accounts available")

	// ErrWrongNetwork is returned when the wallet is on the wrong chain and
	// switching (including registering the chain) failed.
	ErrWrongNetwork = errors.New("wrong network")

	// ErrUserRejected is returned when the holder declines a signature
	// request. The session is left unchanged.
	ErrUserRejected = errors.New("user rejected request")

	// ErrLedgerCallFailed is returned for any read/write failure after a
	// session is established. The ledger's revert reason is authoritative
	// and identical input would fail identically, so these are not retried.
	ErrLedgerCallFailed = errors.New("ledger call failed")

	// ErrWriteInProgress is returned when a write is requested while a
	// prior write's confirmation wait is still outstanding.
	ErrWriteInProgress = errors.New("write already in progress")

	// ErrNotConnected is returned when a gateway call is attempted without
	// an established session.
	ErrNotConnected = errors.New("not connected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidCoverageCountError reports a rejected people count.
type InvalidCoverageCountError struct {
	People int
}

func (e *InvalidCoverageCountError) Error() string {
	return fmt.Sprintf("invalid coverage count: %d (must be >= 1)", e.People)
}

func (e *InvalidCoverageCountError) Unwrap() error { return ErrInvalidCoverageCount }

// InvalidAddressError reports a malformed address.
type InvalidAddressError struct {
	Input  string
	Reason string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Input, e.Reason)
}

func (e *InvalidAddressError) Unwrap() error { return ErrInvalidAddress }

// LedgerError wraps a failed gateway call with the operation that failed.
// The Reason is surfaced verbatim to the caller.
type LedgerError struct {
	Op     string // e.g. "getPolicyDetails", "purchasePolicy"
	Reason string
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *LedgerError) Unwrap() error { return ErrLedgerCallFailed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsInputError returns true if the error is due to invalid caller input and
// should map to a 400-class response.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidCoverageCount) ||
		errors.Is(err, ErrInvalidAddress) ||
		errors.Is(err, ErrNegativeBasePremium)
}

// IsConnectionError returns true for connection-phase failures that leave
// the session Disconnected.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrWalletUnavailable) ||
		errors.Is(err, ErrNoAccounts) ||
		errors.Is(err, ErrWrongNetwork) ||
		errors.Is(err, ErrUserRejected)
}
