package api

import (
	"net/http"

	"github.com/escrowd-network/escrowd/internal/domain"
	"github.com/escrowd-network/escrowd/internal/infra/observability"
)

// ─── Pots ───────────────────────────────────────────────────────────────────

// GET /v1/pots/{id}
func (s *Server) handleGetPot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	pot, err := s.eng.GetPot(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          pot.ID,
		"backs":       pot.Backs.String(),
		"backs_id":    pot.BacksID,
		"balances":    pot.Balances,
		"commitments": pot.Commitments,
		"shortfalls":  pot.Shortfalls,
	})
}

// POST /v1/pots/{id}/deposit
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
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
	done := s.track(r, "deposit")

	err := s.eng.Deposit(caller, id, domain.Token(req.Token), req.Amount)
	done(err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"amount": req.Amount})
}

// POST /v1/pots/move
func (s *Server) handleMovePotFunds(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}
	var req struct {
		FromPermissionDomainID uint64 `json:"from_permission_domain_id"`
		FromChildSkillIndex    uint64 `json:"from_child_skill_index"`
		ToChildSkillIndex      uint64 `json:"to_child_skill_index"`
		FromPotID              uint64 `json:"from_pot_id"`
		ToPotID                uint64 `json:"to_pot_id"`
		Amount                 int64  `json:"amount"`
		Token                  string `json:"token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	done := s.track(r, "move_pot_funds")

	err := s.eng.MovePotFunds(caller, req.FromPermissionDomainID, req.FromChildSkillIndex,
		req.ToChildSkillIndex, req.FromPotID, req.ToPotID, req.Amount, domain.Token(req.Token))
	done(err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"amount": req.Amount})
}

// ─── Claims ─────────────────────────────────────────────────────────────────

// claimResponse is the JSON shape shared by claim and pay endpoints.
func claimResponse(split domain.ClaimSplit) map[string]int64 {
	return map[string]int64{
		"cash":       split.Cash,
		"fee":        split.Fee,
		"net":        split.Net,
		"reputation": split.Reputation,
	}
}

// recordClaimMetrics updates the payment counters for one successful claim.
func recordClaimMetrics(token domain.Token, split domain.ClaimSplit) {
	if split.Cash == 0 {
		return
	}
	observability.ClaimsPaid.Inc()
	observability.ClaimedValue.WithLabelValues(string(token)).Add(float64(split.Net))
	observability.FeeValue.WithLabelValues(string(token)).Add(float64(split.Fee))
}

// POST /v1/expenditures/{id}/claims
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Recipient string `json:"recipient"`
		Token     string `json:"token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Recipient == "" {
		writeError(w, http.StatusBadRequest, "recipient is required")
		return
	}
	done := s.track(r, "claim")

	split, err := s.eng.Claim(id, domain.Account(req.Recipient), domain.Token(req.Token))
	done(err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	recordClaimMetrics(domain.Token(req.Token), split)
	writeJSON(w, http.StatusOK, claimResponse(split))
}

// ─── One-Shot Payments ──────────────────────────────────────────────────────

// POST /v1/pay
func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}
	var req struct {
		PermissionDomainID       uint64 `json:"permission_domain_id"`
		ChildSkillIndex          uint64 `json:"child_skill_index"`
		CallerPermissionDomainID uint64 `json:"caller_permission_domain_id"`
		CallerChildSkillIndex    uint64 `json:"caller_child_skill_index"`
		Recipient                string `json:"recipient"`
		Token                    string `json:"token"`
		Amount                   int64  `json:"amount"`
		DomainID                 uint64 `json:"domain_id"`
		SkillID                  uint64 `json:"skill_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Recipient == "" {
		writeError(w, http.StatusBadRequest, "recipient is required")
		return
	}
	done := s.track(r, "pay")

	id, split, err := s.eng.Pay(caller, req.PermissionDomainID, req.ChildSkillIndex,
		req.CallerPermissionDomainID, req.CallerChildSkillIndex,
		domain.Account(req.Recipient), domain.Token(req.Token), req.Amount,
		req.DomainID, req.SkillID)
	done(err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	observability.ExpendituresCreated.Inc()
	observability.ExpenditureTransitions.WithLabelValues("finalized").Inc()
	recordClaimMetrics(domain.Token(req.Token), split)
	resp := claimResponse(split)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"expenditure_id": id,
		"split":          resp,
	})
}

// POST /v1/pay/domain
func (s *Server) handlePayFundedFromDomain(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}
	var req struct {
		CallerPermissionDomainID uint64 `json:"caller_permission_domain_id"`
		CallerChildSkillIndex    uint64 `json:"caller_child_skill_index"`
		Recipient                string `json:"recipient"`
		Token                    string `json:"token"`
		Amount                   int64  `json:"amount"`
		DomainID                 uint64 `json:"domain_id"`
		SkillID                  uint64 `json:"skill_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Recipient == "" {
		writeError(w, http.StatusBadRequest, "recipient is required")
		return
	}
	done := s.track(r, "pay_funded_from_domain")

	id, split, err := s.eng.PayFundedFromDomain(caller,
		req.CallerPermissionDomainID, req.CallerChildSkillIndex,
		domain.Account(req.Recipient), domain.Token(req.Token), req.Amount,
		req.DomainID, req.SkillID)
	done(err)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	observability.ExpendituresCreated.Inc()
	observability.ExpenditureTransitions.WithLabelValues("finalized").Inc()
	recordClaimMetrics(domain.Token(req.Token), split)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"expenditure_id": id,
		"split":          claimResponse(split),
	})
}
