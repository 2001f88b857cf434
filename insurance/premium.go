/*
premium.go - Premium calculation with the group discount schedule

PURPOSE:
  Computes the final premium for a plan given the number of people covered.
  The same formula runs on-chain; a purchase transaction carries a value
  derived from this function, and the contract rejects the transaction if
  the value falls short of its own computation. The two must therefore agree
  bit-for-bit, which is why everything here is integer arithmetic with
  floor division (the contract's fixed-point semantics).

DISCOUNT SCHEDULE:
  5 percentage points per covered person beyond the first, applied once to
  the linear base*people product (not compounded per person):

    people 1 ->  0% off
    people 2 ->  5% off
    people 3 -> 10% off
    people 4 -> 15% off
    people 5 -> 20% off

  The UI offers 1-5, but the function accepts any people >= 1; the ledger's
  own bound, if any, is authoritative.

SEE ALSO:
  - ledger/memory.go: The contract simulation calls this same function
  - status.go: The other pure half of the domain
*/
package insurance

import "math/big"

const discountStepPercent = 5

// DiscountPercent returns the discount applied for the given group size.
// Callers must have validated people >= 1.
func DiscountPercent(people int) int {
	return (people - 1) * discountStepPercent
}

// CalculatePremium computes base*people*(100-discount)/100 in minor units
// with floor division. It is pure and never mutates base.
func CalculatePremium(base *big.Int, people int) (*big.Int, error) {
	if people < 1 {
		return nil, &InvalidCoverageCountError{People: people}
	}
	if base == nil || base.Sign() < 0 {
		return nil, ErrNegativeBasePremium
	}

	premium := new(big.Int).Mul(base, big.NewInt(int64(people)))
	premium.Mul(premium, big.NewInt(int64(100-DiscountPercent(people))))
	premium.Quo(premium, big.NewInt(100))
	return premium, nil
}
