/*
money.go - Minor-unit/display-unit conversion

PURPOSE:
  The ledger denominates everything in its minor integer unit (18 decimal
  places below the display unit). This file converts between the two without
  floating point: *big.Int carries the authoritative values, and
  decimal.Decimal renders them at the display boundary only.

INVARIANT:
  minor -> display -> minor is lossless for every representable integer.
  ParseDisplay rejects inputs with more than 18 fractional digits rather
  than rounding them, because a silently rounded purchase value would no
  longer match the contract's own premium computation.

SEE ALSO:
  - api/dto.go: All wire amounts go through FormatMinor
  - premium.go: Computes in minor units end to end
*/
package insurance

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// DisplayDecimals is the exponent between the minor unit and the display
// unit (display = minor / 10^18).
const DisplayDecimals = 18

// FormatMinor renders a minor-unit amount as a display-unit decimal string.
func FormatMinor(minor *big.Int) string {
	if minor == nil {
		return "0"
	}
	return decimal.NewFromBigInt(minor, -DisplayDecimals).String()
}

// ParseDisplay parses a display-unit decimal string into minor units.
func ParseDisplay(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse display amount %q: %w", s, err)
	}
	shifted := d.Shift(DisplayDecimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("display amount %q has sub-minor-unit precision", s)
	}
	return shifted.BigInt(), nil
}
