/*
stats.go - Per-holder statistics aggregation

PURPOSE:
  Folds a holder's raw policy records into dashboard counts and the
  cumulative premium total. Single pass, integer accumulation only; the
  total is converted to a display string at the API boundary, never here.

COUNTING RULES:
  - Active/Expired counts come from the resolved status at "now".
  - Cancelled is computed as total minus the number of records whose stored
    active flag is set. Since a record resolves to Cancelled exactly when
    its flag is unset, this subtraction equals the resolved-Cancelled count.
  - TotalPremiumPaid sums every policy's premium regardless of status:
    cancellation does not refund, so the cumulative spend keeps counting.
*/
package insurance

import "math/big"

// AggregateStats computes HolderStats over a holder's policy set.
func AggregateStats(addr Address, policies []Policy, nowUnix int64) HolderStats {
	stats := HolderStats{
		Address:          addr,
		TotalPolicies:    len(policies),
		TotalPremiumPaid: new(big.Int),
	}

	activeFlagged := 0
	for _, p := range policies {
		if p.Active {
			activeFlagged++
		}
		switch p.Status(nowUnix) {
		case StatusActive:
			stats.ActivePolicies++
		case StatusExpired:
			stats.ExpiredPolicies++
		}
		if p.Premium != nil {
			stats.TotalPremiumPaid.Add(stats.TotalPremiumPaid, p.Premium)
		}
	}
	stats.CancelledPolicies = stats.TotalPolicies - activeFlagged
	return stats
}
