/*
handlers.go - HTTP handlers for the coverage API

PURPOSE:
  Exposes plans, policies, holder views, and session-bound writes over
  REST. Handles HTTP request/response, JSON serialization, and delegates
  to the ledger gateway, fan-out orchestrator, and wallet manager.

ENDPOINTS:
  Session:
    GET    /api/session                     Current wallet session
    POST   /api/session/connect             Run the connect sequence
    POST   /api/session/disconnect          Clear the session

  Plans & policies (reads, provider only):
    GET    /api/policies/plans              Active plan listing
    GET    /api/policies/plans/{id}         One plan
    GET    /api/policies/{id}               One policy joined with its plan
    POST   /api/policies/calculate-premium  Ledger-authoritative quote

  Holder views (concurrent fan-out, partial results surfaced):
    GET    /api/users/{address}/policies    Joined policy listing
    GET    /api/users/{address}/stats       Aggregated statistics
    GET    /api/users/{address}/receipts    Off-chain write audit log

  Writes (serialized per session, confirmed before responding):
    POST   /api/policies/purchase           Buy a policy
    POST   /api/policies/{id}/renew         Extend an expired policy
    POST   /api/policies/{id}/cancel        Cancel (terminal)

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (ledger, query, wallet)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Every failure is {"error": true, "message": "..."} with:
  - 400: Validation errors, malformed addresses or ids
  - 409: Write already in flight, or the user rejected the signing prompt
  - 503: No wallet session bound
  - 500: Ledger failures; revert reasons pass through in the message

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - wallet/manager.go: The session every write goes through
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/coverage-engine/insurance"
	"github.com/warp/coverage-engine/ledger"
	"github.com/warp/coverage-engine/query"
	"github.com/warp/coverage-engine/store/sqlite"
	"github.com/warp/coverage-engine/wallet"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Reader   ledger.Reader
	Wallet   *wallet.Manager
	Receipts *sqlite.Store

	// now is swappable so tests can pin status resolution.
	now func() time.Time
}

// NewHandler creates a handler. The reader serves all read endpoints; the
// wallet manager gates writes; the receipt store may be nil, in which case
// writes are not audited and receipt listings are empty.
func NewHandler(reader ledger.Reader, manager *wallet.Manager, receipts *sqlite.Store) *Handler {
	return &Handler{
		Reader:   reader,
		Wallet:   manager,
		Receipts: receipts,
		now:      time.Now,
	}
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// GetSession returns the current wallet session snapshot.
// GET /api/session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSessionDTO(h.Wallet.Session()))
}

// Connect runs the full connection sequence and returns the resulting
// session.
// POST /api/session/connect
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	if err := h.Wallet.Connect(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(h.Wallet.Session()))
}

// Disconnect clears the session.
// POST /api/session/disconnect
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.Wallet.Disconnect()
	writeJSON(w, http.StatusOK, toSessionDTO(h.Wallet.Session()))
}

// =============================================================================
// PLAN & POLICY READS
// =============================================================================

// ListPlans returns the contract's active plan listing.
// GET /api/policies/plans
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Reader.GetActivePlans(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]PlanDTO, len(plans))
	for i, p := range plans {
		dtos[i] = toPlanDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPlan returns a single plan.
// GET /api/policies/plans/{id}
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}

	plan, err := h.Reader.GetPlanDetails(r.Context(), insurance.PlanID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanDTO(plan))
}

// GetPolicy returns one policy joined with its plan and resolved status.
// GET /api/policies/{id}
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}

	rec, err := h.loadPolicyRecord(r, insurance.PolicyID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(rec))
}

// CalculatePremium returns the ledger-authoritative quote for a plan and
// coverage count.
// POST /api/policies/calculate-premium
func (h *Handler) CalculatePremium(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	planID, people, ok := quoteInput(w, req.PlanID, req.NumberOfPeopleCovered)
	if !ok {
		return
	}

	premium, err := h.Reader.CalculatePremium(r.Context(), planID, people)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PremiumDTO{
		PlanID:                uint64(planID),
		NumberOfPeopleCovered: people,
		Premium:               insurance.FormatMinor(premium),
	})
}

// =============================================================================
// HOLDER VIEWS
// =============================================================================

// ListUserPolicies returns every policy an address owns, joined with plan
// details. Lookups that fail are reported per id; the survivors are still
// returned.
// GET /api/users/{address}/policies
func (h *Handler) ListUserPolicies(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}

	batch, err := query.FetchHolderPolicies(r.Context(), h.Reader, addr, h.now().Unix())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := PoliciesResponse{
		Policies: make([]PolicyDTO, len(batch.Records)),
		Failures: toBatchFailureDTOs(batch.Failures),
	}
	for i, rec := range batch.Records {
		resp.Policies[i] = toPolicyDTO(rec)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetUserStats returns aggregated holder statistics.
// GET /api/users/{address}/stats
func (h *Handler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}

	stats, batch, err := query.FetchHolderStats(r.Context(), h.Reader, addr, h.now().Unix())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsDTO(stats, batch.Failures))
}

// ListUserReceipts returns the off-chain audit log for an address, newest
// first.
// GET /api/users/{address}/receipts
func (h *Handler) ListUserReceipts(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}

	dtos := []ReceiptDTO{}
	if h.Receipts != nil {
		receipts, err := h.Receipts.ListByAddress(r.Context(), addr)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, rec := range receipts {
			dtos = append(dtos, toStoredReceiptDTO(rec))
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// WRITES
// =============================================================================

// Purchase buys a policy through the bound session. The premium is
// recomputed from the ledger and sent as the payment value; the response
// carries the confirmed receipt and the fresh policy record.
// POST /api/policies/purchase
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	planID, people, ok := quoteInput(w, req.PlanID, req.NumberOfPeopleCovered)
	if !ok {
		return
	}

	premium, err := h.Reader.CalculatePremium(r.Context(), planID, people)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	receipt, err := h.Wallet.Purchase(r.Context(), planID, people, premium)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	stored := h.recordReceipt(r, sqlite.ActionPurchase, receipt, premium)
	writeJSON(w, http.StatusCreated, stored)
}

// Renew extends a policy by another term. The payment value is the
// policy's stored premium, re-read from the ledger.
// POST /api/policies/{id}/renew
func (h *Handler) Renew(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	policyID := insurance.PolicyID(id)

	policy, err := h.Reader.GetPolicyDetails(r.Context(), policyID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	receipt, err := h.Wallet.Renew(r.Context(), policyID, policy.Premium)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	stored := h.recordReceipt(r, sqlite.ActionRenew, receipt, policy.Premium)
	writeJSON(w, http.StatusOK, stored)
}

// Cancel cancels a policy. Terminal; a cancelled policy can never be
// renewed.
// POST /api/policies/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}

	receipt, err := h.Wallet.Cancel(r.Context(), insurance.PolicyID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	stored := h.recordReceipt(r, sqlite.ActionCancel, receipt, nil)
	writeJSON(w, http.StatusOK, stored)
}

// recordReceipt persists a confirmed write to the audit log. Persistence
// failure is logged, not surfaced: the on-chain write already happened and
// the client must learn of it.
func (h *Handler) recordReceipt(r *http.Request, action sqlite.Action, receipt ledger.Receipt, premium *big.Int) ReceiptDTO {
	if premium == nil {
		premium = big.NewInt(0)
	}
	dto := ReceiptDTO{
		Action:      string(action),
		PolicyID:    uint64(receipt.PolicyID),
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		Premium:     insurance.FormatMinor(premium),
	}
	if h.Receipts == nil {
		return dto
	}

	saved, err := h.Receipts.Save(r.Context(), sqlite.Receipt{
		Address:     h.Wallet.Session().Account,
		Action:      action,
		PolicyID:    receipt.PolicyID,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		Premium:     premium,
	})
	if err != nil {
		log.Printf("receipt not recorded for tx %s: %v", receipt.TxHash, err)
		return dto
	}
	dto.ID = saved.ID
	dto.CreatedAt = saved.CreatedAt.Format(time.RFC3339)
	return dto
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) loadPolicyRecord(r *http.Request, id insurance.PolicyID) (query.PolicyRecord, error) {
	policy, err := h.Reader.GetPolicyDetails(r.Context(), id)
	if err != nil {
		return query.PolicyRecord{}, err
	}
	plan, err := h.Reader.GetPlanDetails(r.Context(), policy.PlanID)
	if err != nil {
		return query.PolicyRecord{}, err
	}
	return query.PolicyRecord{
		Policy: policy,
		Plan:   plan,
		Status: policy.Status(h.now().Unix()),
	}, nil
}

func uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+" parameter")
		return 0, false
	}
	return v, true
}

func addressParam(w http.ResponseWriter, r *http.Request) (insurance.Address, bool) {
	addr, err := insurance.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return addr, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// quoteInput validates the shared planId/numberOfPeopleCovered pair.
func quoteInput(w http.ResponseWriter, planID *uint64, people *int) (insurance.PlanID, int, bool) {
	if planID == nil {
		writeError(w, http.StatusBadRequest, "planId is required")
		return 0, 0, false
	}
	if people == nil {
		writeError(w, http.StatusBadRequest, "numberOfPeopleCovered is required")
		return 0, 0, false
	}
	if *people < 1 {
		writeError(w, http.StatusBadRequest, "numberOfPeopleCovered must be at least 1")
		return 0, 0, false
	}
	return insurance.PlanID(*planID), *people, true
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case insurance.IsInputError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, insurance.ErrWriteInProgress),
		errors.Is(err, insurance.ErrUserRejected):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, insurance.ErrNotConnected),
		errors.Is(err, insurance.ErrWalletUnavailable),
		errors.Is(err, insurance.ErrNoAccounts),
		errors.Is(err, insurance.ErrWrongNetwork):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: true, Message: message})
}
