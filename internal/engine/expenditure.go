package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/escrowd-network/escrowd/internal/domain"
)

// ─── Expenditure State Machine ──────────────────────────────────────────────
// Active → Cancelled | Finalized. Both targets are terminal: no transition
// leaves a terminal state, and terminal expenditures never change owner or
// committed payouts. The two arbitration setters at the bottom of this file
// are the single deliberate exception to the owner/Active gate.

// ownedActive fetches an expenditure and enforces the standard mutator gate:
// the expenditure must be Active and the caller must be its owner.
func (e *Engine) ownedActive(caller domain.Account, id uint64) (*domain.Expenditure, error) {
	exp, err := e.expenditure(id)
	if err != nil {
		return nil, err
	}
	if exp.Status.Terminal() {
		return nil, domain.ErrNotActive
	}
	if exp.Owner != caller {
		return nil, domain.ErrNotOwner
	}
	return exp, nil
}

// CreateExpenditure allocates a new expenditure and its funding pot, bound
// 1:1, with the caller as owner. The caller must hold administration
// authority in permissionDomainID, and permissionDomainID/childSkillIndex
// must resolve to domainID.
func (e *Engine) CreateExpenditure(caller domain.Account, permissionDomainID, childSkillIndex, domainID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRunning(); err != nil {
		return 0, err
	}
	if err := e.authorize(caller, permissionDomainID, childSkillIndex, domainID, domain.OpAdministration); err != nil {
		return 0, err
	}

	t := newTxn()
	exp := e.createExpenditure(t, caller, domainID)
	e.commit(t)
	return exp.ID, nil
}

// createExpenditure allocates the expenditure and its pot under the journal.
func (e *Engine) createExpenditure(t *txn, owner domain.Account, domainID uint64) *domain.Expenditure {
	e.expCount++
	id := e.expCount
	pot := e.allocatePot(t, domain.PotExpenditure, id)
	exp := &domain.Expenditure{
		ID:           id,
		Status:       domain.StatusActive,
		Owner:        owner,
		FundingPotID: pot.ID,
		DomainID:     domainID,
		Recipients:   make(map[domain.Account]*domain.RecipientSlot),
	}
	e.expenditures[id] = exp
	t.touchExp(id)
	t.record(func() {
		delete(e.expenditures, id)
		e.expCount--
	})
	return exp
}

// TransferOwner reassigns an Active expenditure to a new owner.
func (e *Engine) TransferOwner(caller domain.Account, id uint64, newOwner domain.Account) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRunning(); err != nil {
		return err
	}
	if newOwner == "" {
		return domain.ErrInvalidOwner
	}
	exp, err := e.ownedActive(caller, id)
	if err != nil {
		return err
	}

	t := newTxn()
	exp.Owner = newOwner
	t.touchExp(id)
	e.commit(t)
	return nil
}

// Cancel marks an Active expenditure Cancelled. Payouts are NOT zeroed:
// cancellation only unlocks the pot so funds can move back out.
func (e *Engine) Cancel(caller domain.Account, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRunning(); err != nil {
		return err
	}
	exp, err := e.ownedActive(caller, id)
	if err != nil {
		return err
	}

	t := newTxn()
	exp.Status = domain.StatusCancelled
	t.touchExp(id)
	e.commit(t)
	return nil
}

// Finalize marks an Active expenditure Finalized and stamps the finalization
// time. The bound pot's shortfall counter must be exactly zero.
func (e *Engine) Finalize(caller domain.Account, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRunning(); err != nil {
		return err
	}
	exp, err := e.ownedActive(caller, id)
	if err != nil {
		return err
	}

	t := newTxn()
	if err := e.finalize(t, exp); err != nil {
		t.rollback()
		return err
	}
	e.commit(t)
	return nil
}

// finalize applies the shortfall gate and the irreversible transition.
func (e *Engine) finalize(t *txn, exp *domain.Expenditure) error {
	pot, err := e.pot(exp.FundingPotID)
	if err != nil {
		return err
	}
	if pot.Shortfalls != 0 {
		return domain.ErrNotFunded
	}
	prevStatus, prevAt := exp.Status, exp.FinalizedAt
	exp.Status = domain.StatusFinalized
	exp.FinalizedAt = e.now()
	t.touchExp(exp.ID)
	t.record(func() {
		exp.Status = prevStatus
		exp.FinalizedAt = prevAt
	})
	return nil
}

// ─── Recipient Slot Setters (owner, Active) ─────────────────────────────────

// SetRecipientSkill records the global skill to credit reputation against
// for one recipient, overwriting any previous skill.
func (e *Engine) SetRecipientSkill(caller domain.Account, id uint64, recipient domain.Account, skillID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRunning(); err != nil {
		return err
	}
	exp, err := e.ownedActive(caller, id)
	if err != nil {
		return err
	}
	if err := e.validateSkill(skillID); err != nil {
		return err
	}

	t := newTxn()
	e.setSkill(t, exp, recipient, skillID)
	e.commit(t)
	return nil
}

func (e *Engine) validateSkill(skillID uint64) error {
	if !e.deps.Tree.SkillExists(skillID) || !e.deps.Tree.IsGlobalSkill(skillID) {
		return domain.ErrInvalidSkill
	}
	if e.deps.Tree.IsDeprecatedSkill(skillID) {
		return domain.ErrDeprecatedSkill
	}
	return nil
}

func (e *Engine) setSkill(t *txn, exp *domain.Expenditure, recipient domain.Account, skillID uint64) {
	slot := exp.Recipient(recipient)
	prev := slot.SkillID
	slot.SkillID = skillID
	t.touchExp(exp.ID)
	t.record(func() { slot.SkillID = prev })
}

// SetRecipientPayout sets the amount owed to (recipient, token), replacing
// any prior value, and recomputes the pot's commitment and shortfall state
// for that token.
func (e *Engine) SetRecipientPayout(caller domain.Account, id uint64, recipient domain.Account, token domain.Token, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRunning(); err != nil {
		return err
	}
	if amount < 0 {
		return domain.ErrNegativeValue
	}
	exp, err := e.ownedActive(caller, id)
	if err != nil {
		return err
	}

	t := newTxn()
	if err := e.setPayout(t, exp, recipient, token, amount); err != nil {
		t.rollback()
		return err
	}
	e.commit(t)
	return nil
}

// setPayout replaces the (recipient, token) payout and keeps the pot's
// aggregate commitment in step.
func (e *Engine) setPayout(t *txn, exp *domain.Expenditure, recipient domain.Account, token domain.Token, amount int64) error {
	pot, err := e.pot(exp.FundingPotID)
	if err != nil {
		return err
	}
	slot := exp.Recipient(recipient)
	prev := slot.Payouts[token]
	wasShort := pot.TokenShort(token)
	prevShortfalls := pot.Shortfalls

	slot.Payouts[token] = amount
	pot.Commitments[token] += amount - prev
	pot.RecountShortfall(token, wasShort)
	t.touchExp(exp.ID)
	t.touchPot(pot.ID)
	t.record(func() {
		slot.Payouts[token] = prev
		pot.Commitments[token] -= amount - prev
		pot.Shortfalls = prevShortfalls
	})
	return nil
}

// ─── Arbitration Setters (no owner/Active gate) ─────────────────────────────
// These deliberately omit the Active-status and ownership preconditions:
// arbitration-privileged accounts may adjust payout terms on a Finalized
// expenditure whose recipients have not yet claimed (post-hoc dispute
// resolution). Confirmed behavior, not an oversight.

// SetPayoutScalar sets the claim-time multiplier for one recipient. Requires
// arbitration authority resolved against the expenditure's domain.
func (e *Engine) SetPayoutScalar(caller domain.Account, permissionDomainID, childSkillIndex, id uint64, recipient domain.Account, scalar decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRunning(); err != nil {
		return err
	}
	if scalar.IsNegative() {
		return domain.ErrNegativeValue
	}
	exp, err := e.expenditure(id)
	if err != nil {
		return err
	}
	if err := e.authorize(caller, permissionDomainID, childSkillIndex, exp.DomainID, domain.OpArbitration); err != nil {
		return err
	}

	t := newTxn()
	slot := exp.Recipient(recipient)
	slot.PayoutScalar = scalar
	t.touchExp(id)
	e.commit(t)
	return nil
}

// SetClaimDelay sets the minimum wait after finalization before one
// recipient may claim. Same authority rule as SetPayoutScalar.
func (e *Engine) SetClaimDelay(caller domain.Account, permissionDomainID, childSkillIndex, id uint64, recipient domain.Account, delay time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRunning(); err != nil {
		return err
	}
	if delay < 0 {
		return domain.ErrNegativeValue
	}
	exp, err := e.expenditure(id)
	if err != nil {
		return err
	}
	if err := e.authorize(caller, permissionDomainID, childSkillIndex, exp.DomainID, domain.OpArbitration); err != nil {
		return err
	}

	t := newTxn()
	slot := exp.Recipient(recipient)
	slot.ClaimDelay = delay
	t.touchExp(id)
	e.commit(t)
	return nil
}
