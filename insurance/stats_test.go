package insurance

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testNow = int64(1_700_000_000)

func testPolicy(id PolicyID, active bool, endDate int64, premium int64) Policy {
	return Policy{
		ID:            id,
		PlanID:        1,
		Policyholder:  "0x1111111111111111111111111111111111111111",
		StartDate:     testNow - 10_000_000,
		EndDate:       endDate,
		PeopleCovered: 2,
		Premium:       big.NewInt(premium),
		Active:        active,
	}
}

func TestAggregateStats_MixedStatuses(t *testing.T) {
	// GIVEN: one active, one expired, one cancelled policy
	// WHEN: Aggregating at "now"
	// THEN: Each lands in its own bucket; the premium total sums all three

	policies := []Policy{
		testPolicy(1, true, testNow+1000, 100),
		testPolicy(2, true, testNow-1000, 250),
		testPolicy(3, false, testNow-1000, 400),
	}

	stats := AggregateStats(policies[0].Policyholder, policies, testNow)

	assert.Equal(t, 3, stats.TotalPolicies)
	assert.Equal(t, 1, stats.ActivePolicies)
	assert.Equal(t, 1, stats.ExpiredPolicies)
	assert.Equal(t, 1, stats.CancelledPolicies)
	assert.Equal(t, "750", stats.TotalPremiumPaid.String())
}

func TestAggregateStats_CancelledIncludesPremium(t *testing.T) {
	// Cancellation does not refund: the total keeps counting.
	policies := []Policy{
		testPolicy(1, false, testNow-1, 500),
	}
	stats := AggregateStats(policies[0].Policyholder, policies, testNow)
	assert.Equal(t, 1, stats.CancelledPolicies)
	assert.Equal(t, "500", stats.TotalPremiumPaid.String())
}

func TestAggregateStats_Empty(t *testing.T) {
	stats := AggregateStats("0x1111111111111111111111111111111111111111", nil, testNow)
	assert.Equal(t, 0, stats.TotalPolicies)
	assert.Equal(t, 0, stats.ActivePolicies)
	assert.Equal(t, 0, stats.ExpiredPolicies)
	assert.Equal(t, 0, stats.CancelledPolicies)
	assert.Equal(t, "0", stats.TotalPremiumPaid.String())
}

func TestAggregateStats_LargePremiumSum(t *testing.T) {
	// GIVEN: premiums near the int64 ceiling
	// THEN: The big.Int accumulation does not overflow

	huge := new(big.Int).Lsh(big.NewInt(1), 62) // 2^62 each
	p1 := testPolicy(1, true, testNow+1, 0)
	p1.Premium = huge
	p2 := testPolicy(2, true, testNow+1, 0)
	p2.Premium = huge
	p3 := testPolicy(3, true, testNow+1, 0)
	p3.Premium = huge

	stats := AggregateStats(p1.Policyholder, []Policy{p1, p2, p3}, testNow)

	want := new(big.Int).Mul(huge, big.NewInt(3))
	assert.Equal(t, want.String(), stats.TotalPremiumPaid.String())
}

func TestAggregateStats_CancelledMatchesResolvedCount(t *testing.T) {
	// The subtraction total-activeFlagged must equal the number of records
	// that resolve to Cancelled, since active=false <=> Cancelled.
	policies := []Policy{
		testPolicy(1, true, testNow+1, 1),
		testPolicy(2, false, testNow+1, 1),
		testPolicy(3, false, testNow-1, 1),
		testPolicy(4, true, testNow-1, 1),
	}
	stats := AggregateStats(policies[0].Policyholder, policies, testNow)

	resolved := 0
	for _, p := range policies {
		if p.Status(testNow) == StatusCancelled {
			resolved++
		}
	}
	assert.Equal(t, resolved, stats.CancelledPolicies)
}
