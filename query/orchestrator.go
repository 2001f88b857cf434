/*
Package query fans ledger reads out concurrently and joins the results.

PURPOSE:
  A holder's dashboard needs every policy they own, each joined with its
  plan. The orchestrator issues one read per policy id with a nested plan
  read inside, runs the whole set concurrently, and joins by id.

PARTIAL FAILURE:
  Every lookup settles. A failed item is reported in the batch's failure
  list alongside the records that succeeded; it never cancels or discards
  its siblings. This is why the fan-out joins with a WaitGroup rather than
  a cancel-on-error group: first-error cancellation is exactly the
  behavior this package must not have.

SEE ALSO:
  - ledger/gateway.go: The Reader being fanned out over
  - insurance/stats.go: The fold FetchHolderStats applies
*/
package query

import (
	"context"
	"sync"

	"github.com/warp/coverage-engine/insurance"
	"github.com/warp/coverage-engine/ledger"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// PolicyRecord is a policy joined with its plan and resolved status.
type PolicyRecord struct {
	Policy insurance.Policy
	Plan   insurance.Plan
	Status insurance.PolicyStatus
}

// ItemError reports one failed lookup within a batch.
type ItemError struct {
	PolicyID insurance.PolicyID
	Err      error
}

// Batch is the joined result of a holder fan-out. Records holds the
// lookups that succeeded, in the ledger's listing order; Failures holds
// the rest.
type Batch struct {
	Records  []PolicyRecord
	Failures []ItemError
}

// Partial reports whether some, but not all, lookups failed.
func (b Batch) Partial() bool {
	return len(b.Failures) > 0 && len(b.Records) > 0
}

// =============================================================================
// FAN-OUT
// =============================================================================

// FetchHolderPolicies loads every policy a holder owns, each joined with
// its plan and resolved at nowUnix. The id listing itself failing is the
// only whole-batch error; individual lookups settle independently.
func FetchHolderPolicies(ctx context.Context, r ledger.Reader, addr insurance.Address, nowUnix int64) (Batch, error) {
	ids, err := r.GetUserPolicies(ctx, addr)
	if err != nil {
		return Batch{}, err
	}
	return fanOut(ctx, r, ids, nowUnix, true), nil
}

// FetchHolderStats folds a holder's policies into HolderStats. Plan
// details are not needed for counting, so the nested read is skipped.
// Failed lookups are excluded from the fold and reported in the batch.
func FetchHolderStats(ctx context.Context, r ledger.Reader, addr insurance.Address, nowUnix int64) (insurance.HolderStats, Batch, error) {
	ids, err := r.GetUserPolicies(ctx, addr)
	if err != nil {
		return insurance.HolderStats{}, Batch{}, err
	}
	batch := fanOut(ctx, r, ids, nowUnix, false)

	policies := make([]insurance.Policy, len(batch.Records))
	for i, rec := range batch.Records {
		policies[i] = rec.Policy
	}
	return insurance.AggregateStats(addr, policies, nowUnix), batch, nil
}

// fanOut issues one lookup goroutine per id and waits for all of them to
// settle. Results land in pre-sized slots so no locking is needed and the
// listing order survives the join.
func fanOut(ctx context.Context, r ledger.Reader, ids []insurance.PolicyID, nowUnix int64, withPlans bool) Batch {
	type slot struct {
		record PolicyRecord
		err    error
	}
	slots := make([]slot, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id insurance.PolicyID) {
			defer wg.Done()

			policy, err := r.GetPolicyDetails(ctx, id)
			if err != nil {
				slots[i].err = err
				return
			}

			record := PolicyRecord{Policy: policy, Status: policy.Status(nowUnix)}
			if withPlans {
				plan, err := r.GetPlanDetails(ctx, policy.PlanID)
				if err != nil {
					slots[i].err = err
					return
				}
				record.Plan = plan
			}
			slots[i].record = record
		}(i, id)
	}
	wg.Wait()

	var batch Batch
	for i, s := range slots {
		if s.err != nil {
			batch.Failures = append(batch.Failures, ItemError{PolicyID: ids[i], Err: s.err})
			continue
		}
		batch.Records = append(batch.Records, s.record)
	}
	return batch
}
