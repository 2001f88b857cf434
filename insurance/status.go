/*
status.go - Policy lifecycle status resolution

PURPOSE:
  A policy's status is never stored; it is a pure function of the stored
  active flag, the end date, and the current time. Cancellation dominates
  and is terminal. Expiry is recoverable: a renew write extends the end date
  and the next resolution returns Active again.

  Because status is time-dependent, callers re-resolve on every read pass
  and never cache the result beyond a single query.
*/
package insurance

// ResolveStatus derives the lifecycle status of a policy.
//
//	active == false          -> Cancelled (regardless of dates)
//	active && now > endDate  -> Expired
//	otherwise                -> Active
func ResolveStatus(active bool, endDateUnix, nowUnix int64) PolicyStatus {
	if !active {
		return StatusCancelled
	}
	if nowUnix > endDateUnix {
		return StatusExpired
	}
	return StatusActive
}

// Status resolves the policy's own status at the given time.
func (p Policy) Status(nowUnix int64) PolicyStatus {
	return ResolveStatus(p.Active, p.EndDate, nowUnix)
}
