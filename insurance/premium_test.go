/*
premium_test.go - Unit tests for the discount schedule

CORE DESIGN:
- The formula must match the contract's integer arithmetic exactly,
  including floor division, so tests pin exact minor-unit values.
*/
package insurance

import (
	"errors"
	"math/big"
	"testing"
)

func TestCalculatePremium_SinglePerson_NoDiscount(t *testing.T) {
	// GIVEN: base premium of 1,000,000 minor units, 1 person
	// WHEN: Calculating the premium
	// THEN: No discount applies

	got, err := CalculatePremium(big.NewInt(1_000_000), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("Expected 1000000, got %s", got)
	}
}

func TestCalculatePremium_ThreePeople_TenPercentOff(t *testing.T) {
	// GIVEN: base premium of 1,000,000 minor units, 3 people
	// WHEN: Calculating the premium
	// THEN: 1,000,000 * 3 * 0.90 = 2,700,000

	got, err := CalculatePremium(big.NewInt(1_000_000), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(big.NewInt(2_700_000)) != 0 {
		t.Errorf("Expected 2700000, got %s", got)
	}
}

func TestCalculatePremium_FloorDivision(t *testing.T) {
	// GIVEN: a base that makes base*people*(100-discount) indivisible by 100
	// WHEN: Calculating the premium
	// THEN: The result is floored, matching the contract's fixed-point math

	// 33 * 2 * 95 = 6270 -> 62 (floor), not 63
	got, err := CalculatePremium(big.NewInt(33), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(big.NewInt(62)) != 0 {
		t.Errorf("Expected 62 (floored), got %s", got)
	}
}

func TestCalculatePremium_FullSchedule(t *testing.T) {
	// The five tiers the UI enumerates, against a wei-scale base.
	base, _ := new(big.Int).SetString("10000000000000000", 10) // 0.01 display units

	cases := []struct {
		people int
		want   string
	}{
		{1, "10000000000000000"},
		{2, "19000000000000000"},
		{3, "27000000000000000"},
		{4, "34000000000000000"},
		{5, "40000000000000000"},
	}

	for _, tc := range cases {
		got, err := CalculatePremium(base, tc.people)
		if err != nil {
			t.Fatalf("people=%d: unexpected error: %v", tc.people, err)
		}
		if got.String() != tc.want {
			t.Errorf("people=%d: expected %s, got %s", tc.people, tc.want, got)
		}
	}
}

func TestCalculatePremium_BeyondUITiers(t *testing.T) {
	// The function accepts any people >= 1; the 1-5 range is a UI limit.
	got, err := CalculatePremium(big.NewInt(100), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// discount 45%, 100*10*55/100 = 550
	if got.Cmp(big.NewInt(550)) != 0 {
		t.Errorf("Expected 550, got %s", got)
	}
}

func TestCalculatePremium_RejectsNonPositivePeople(t *testing.T) {
	for _, people := range []int{0, -1, -100} {
		_, err := CalculatePremium(big.NewInt(100), people)
		if !errors.Is(err, ErrInvalidCoverageCount) {
			t.Errorf("people=%d: expected ErrInvalidCoverageCount, got %v", people, err)
		}
	}
}

func TestCalculatePremium_RejectsNegativeBase(t *testing.T) {
	_, err := CalculatePremium(big.NewInt(-1), 1)
	if !errors.Is(err, ErrNegativeBasePremium) {
		t.Errorf("expected ErrNegativeBasePremium, got %v", err)
	}
}

func TestCalculatePremium_MonotonicInBase(t *testing.T) {
	// GIVEN: increasing base premiums at a fixed group size
	// THEN: The premium never decreases

	prev := big.NewInt(-1)
	for base := int64(0); base <= 1000; base += 37 {
		got, err := CalculatePremium(big.NewInt(base), 4)
		if err != nil {
			t.Fatalf("base=%d: unexpected error: %v", base, err)
		}
		if got.Cmp(prev) < 0 {
			t.Fatalf("premium decreased: base=%d gave %s after %s", base, got, prev)
		}
		prev = got
	}
}

func TestCalculatePremium_DoesNotMutateBase(t *testing.T) {
	base := big.NewInt(1_000_000)
	if _, err := CalculatePremium(base, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("base premium was mutated: %s", base)
	}
}
