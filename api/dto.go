/*
dto.go - Request/response data structures for the coverage API

PURPOSE:
  Defines the JSON shapes that cross the HTTP boundary, decoupled from the
  domain model. Two rules hold everywhere:
  - Monetary values travel as display-unit decimal strings, never raw
    minor-unit integers, so no client loses precision on them.
  - Timestamps travel as RFC3339 strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Produces and consumes these types
  - insurance/money.go: The display conversion everything funnels through
*/
package api

import (
	"time"

	"github.com/warp/coverage-engine/insurance"
	"github.com/warp/coverage-engine/query"
	"github.com/warp/coverage-engine/store/sqlite"
	"github.com/warp/coverage-engine/wallet"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// PlanDTO represents one coverage plan.
type PlanDTO struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	BasePremium string `json:"basePremium"`
	Active      bool   `json:"active"`
}

// PolicyDTO represents a policy joined with its plan.
type PolicyDTO struct {
	ID                    uint64 `json:"id"`
	PlanID                uint64 `json:"planId"`
	PlanName              string `json:"planName,omitempty"`
	PlanCategory          string `json:"planCategory,omitempty"`
	Policyholder          string `json:"policyholder"`
	StartDate             string `json:"startDate"`
	EndDate               string `json:"endDate"`
	NumberOfPeopleCovered int    `json:"numberOfPeopleCovered"`
	Premium               string `json:"premium"`
	Status                string `json:"status"`
	Active                bool   `json:"active"`
}

// BatchFailureDTO reports one failed lookup inside a fan-out.
type BatchFailureDTO struct {
	PolicyID uint64 `json:"policyId"`
	Message  string `json:"message"`
}

// PoliciesResponse is a holder's listing plus any per-policy failures.
type PoliciesResponse struct {
	Policies []PolicyDTO       `json:"policies"`
	Failures []BatchFailureDTO `json:"failures,omitempty"`
}

// StatsDTO represents holder statistics.
type StatsDTO struct {
	Address           string            `json:"address"`
	TotalPolicies     int               `json:"totalPolicies"`
	ActivePolicies    int               `json:"activePolicies"`
	ExpiredPolicies   int               `json:"expiredPolicies"`
	CancelledPolicies int               `json:"cancelledPolicies"`
	TotalPremiumPaid  string            `json:"totalPremiumPaid"`
	Failures          []BatchFailureDTO `json:"failures,omitempty"`
}

// PremiumDTO is a quote.
type PremiumDTO struct {
	PlanID                uint64 `json:"planId"`
	NumberOfPeopleCovered int    `json:"numberOfPeopleCovered"`
	Premium               string `json:"premium"`
}

// ReceiptDTO represents a confirmed write.
type ReceiptDTO struct {
	ID          string `json:"id,omitempty"`
	Action      string `json:"action"`
	PolicyID    uint64 `json:"policyId"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	Premium     string `json:"premium"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

// SessionDTO is a snapshot of the wallet session.
type SessionDTO struct {
	State   string `json:"state"`
	Account string `json:"account,omitempty"`
	ChainID uint64 `json:"chainId,omitempty"`
	Balance string `json:"balance,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorResponse is the error envelope every failed request gets.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// QuoteRequest asks for a premium quote. Pointer fields distinguish
// "missing" from zero.
type QuoteRequest struct {
	PlanID                *uint64 `json:"planId"`
	NumberOfPeopleCovered *int    `json:"numberOfPeopleCovered"`
}

// PurchaseRequest buys a policy through the bound session. The premium is
// recomputed server-side; clients never set the payment amount.
type PurchaseRequest struct {
	PlanID                *uint64 `json:"planId"`
	NumberOfPeopleCovered *int    `json:"numberOfPeopleCovered"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPlanDTO(p insurance.Plan) PlanDTO {
	return PlanDTO{
		ID:          uint64(p.ID),
		Name:        p.Name,
		Category:    p.Category,
		Description: p.Description,
		BasePremium: insurance.FormatMinor(p.BasePremium),
		Active:      p.Active,
	}
}

func toPolicyDTO(rec query.PolicyRecord) PolicyDTO {
	p := rec.Policy
	return PolicyDTO{
		ID:                    uint64(p.ID),
		PlanID:                uint64(p.PlanID),
		PlanName:              rec.Plan.Name,
		PlanCategory:          rec.Plan.Category,
		Policyholder:          p.Policyholder.String(),
		StartDate:             time.Unix(p.StartDate, 0).UTC().Format(time.RFC3339),
		EndDate:               time.Unix(p.EndDate, 0).UTC().Format(time.RFC3339),
		NumberOfPeopleCovered: p.PeopleCovered,
		Premium:               insurance.FormatMinor(p.Premium),
		Status:                string(rec.Status),
		Active:                p.Active,
	}
}

func toBatchFailureDTOs(failures []query.ItemError) []BatchFailureDTO {
	if len(failures) == 0 {
		return nil
	}
	dtos := make([]BatchFailureDTO, len(failures))
	for i, f := range failures {
		dtos[i] = BatchFailureDTO{PolicyID: uint64(f.PolicyID), Message: f.Err.Error()}
	}
	return dtos
}

func toStatsDTO(stats insurance.HolderStats, failures []query.ItemError) StatsDTO {
	return StatsDTO{
		Address:           stats.Address.String(),
		TotalPolicies:     stats.TotalPolicies,
		ActivePolicies:    stats.ActivePolicies,
		ExpiredPolicies:   stats.ExpiredPolicies,
		CancelledPolicies: stats.CancelledPolicies,
		TotalPremiumPaid:  insurance.FormatMinor(stats.TotalPremiumPaid),
		Failures:          toBatchFailureDTOs(failures),
	}
}

func toStoredReceiptDTO(r sqlite.Receipt) ReceiptDTO {
	return ReceiptDTO{
		ID:          r.ID,
		Action:      string(r.Action),
		PolicyID:    uint64(r.PolicyID),
		TxHash:      r.TxHash,
		BlockNumber: r.BlockNumber,
		Premium:     insurance.FormatMinor(r.Premium),
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
}

func toSessionDTO(s wallet.Session) SessionDTO {
	dto := SessionDTO{
		State:   string(s.State),
		Account: s.Account.String(),
		ChainID: s.ChainID,
	}
	if s.Balance != nil {
		dto.Balance = insurance.FormatMinor(s.Balance)
	}
	if s.LastErr != nil {
		dto.Error = s.LastErr.Error()
	}
	return dto
}
