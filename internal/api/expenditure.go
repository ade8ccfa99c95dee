package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/escrowd-network/escrowd/internal/domain"
	"github.com/escrowd-network/escrowd/internal/infra/observability"
)

// pathID parses the named path parameter as a uint64 id.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// pathAccount reads the {account} path parameter.
func pathAccount(r *http.Request) domain.Account {
	return domain.Account(chi.URLParam(r, "account"))
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// POST /v1/expenditures
func (s *Server) handleCreateExpenditure(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}
	var req struct {
		PermissionDomainID uint64 `json:"permission_domain_id"`
		ChildSkillIndex    uint64 `json:"child_skill_index"`
		DomainID           uint64 `json:"domain_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	done := s.track(r, "create_expenditure")

	id, err := s.eng.CreateExpenditure(caller, req.PermissionDomainID, req.ChildSkillIndex, req.DomainID)
	done(err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	observability.ExpendituresCreated.Inc()
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

// GET /v1/expenditures/{id}
func (s *Server) handleGetExpenditure(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	exp, err := s.eng.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := map[string]interface{}{
		"id":             exp.ID,
		"status":         exp.Status.String(),
		"owner":          exp.Owner,
		"funding_pot_id": exp.FundingPotID,
		"domain_id":      exp.DomainID,
	}
	if !exp.FinalizedAt.IsZero() {
		resp["finalized_at"] = exp.FinalizedAt.UTC().Format(time.RFC3339Nano)
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /v1/expenditures/{id}/cancel
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	done := s.track(r, "cancel_expenditure")

	err := s.eng.Cancel(caller, id)
	done(err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	observability.ExpenditureTransitions.WithLabelValues("cancelled").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// POST /v1/expenditures/{id}/finalize
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	done := s.track(r, "finalize_expenditure")

	err := s.eng.Finalize(caller, id)
	done(err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	observability.ExpenditureTransitions.WithLabelValues("finalized").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "finalized"})
}

// POST /v1/expenditures/{id}/owner
func (s *Server) handleTransferOwner(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		NewOwner string `json:"new_owner"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.NewOwner == "" {
		writeError(w, http.StatusBadRequest, "new_owner is required")
		return
	}
	done := s.track(r, "transfer_owner")

	err := s.eng.TransferOwner(caller, id, domain.Account(req.NewOwner))
	done(err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": req.NewOwner})
}

// ─── Recipient Slots ────────────────────────────────────────────────────────

// GET /v1/expenditures/{id}/recipients/{account}
func (s *Server) handleGetRecipient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	slot, err := s.eng.GetRecipient(id, pathAccount(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"skill_id":      slot.SkillID,
		"payout_scalar": slot.PayoutScalar.String(),
		"claim_delay":   slot.ClaimDelay.String(),
		"payouts":       slot.Payouts,
	})
}

// GET /v1/expenditures/{id}/recipients/{account}/payout?token=GOLD
func (s *Server) handleGetPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	token := domain.Token(r.URL.Query().Get("token"))
	amount, err := s.eng.GetPayout(id, pathAccount(r), token)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":  token,
		"amount": amount,
	})
}

// PUT /v1/expenditures/{id}/recipients/{account}/skill
func (s *Server) handleSetSkill(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		SkillID uint64 `json:"skill_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	done := s.track(r, "set_recipient_skill")

	err := s.eng.SetRecipientSkill(caller, id, pathAccount(r), req.SkillID)
	done(err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"skill_id": req.SkillID})
}

// PUT /v1/expenditures/{id}/recipients/{account}/payout
func (s *Server) handleSetPayout(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Token  string `json:"token"`
		Amount int64  `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	done := s.track(r, "set_recipient_payout")

	err := s.eng.SetRecipientPayout(caller, id, pathAccount(r), domain.Token(req.Token), req.Amount)
	done(err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"amount": req.Amount})
}

// PUT /v1/expenditures/{id}/recipients/{account}/scalar
func (s *Server) handleSetScalar(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		PermissionDomainID uint64 `json:"permission_domain_id"`
		ChildSkillIndex    uint64 `json:"child_skill_index"`
		Scalar             string `json:"scalar"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	scalar, err := decimal.NewFromString(req.Scalar)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid scalar: "+err.Error())
		return
	}
	done := s.track(r, "set_payout_scalar")

	err = s.eng.SetPayoutScalar(caller, req.PermissionDomainID, req.ChildSkillIndex, id, pathAccount(r), scalar)
	done(err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"scalar": scalar.String()})
}

// PUT /v1/expenditures/{id}/recipients/{account}/delay
func (s *Server) handleSetDelay(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		PermissionDomainID uint64 `json:"permission_domain_id"`
		ChildSkillIndex    uint64 `json:"child_skill_index"`
		Delay              string `json:"delay"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	delay, err := time.ParseDuration(req.Delay)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid delay: "+err.Error())
		return
	}
	done := s.track(r, "set_claim_delay")

	err = s.eng.SetClaimDelay(caller, req.PermissionDomainID, req.ChildSkillIndex, id, pathAccount(r), delay)
	done(err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"delay": delay.String()})
}
