package engine

import (
	"github.com/escrowd-network/escrowd/internal/domain"
)

// ─── Atomic Payment Orchestrator ────────────────────────────────────────────
// A single composed operation: create an expenditure, set its payout and
// skill, move funds into its pot, finalize, and claim on behalf of the
// recipient. Every step runs under one journal: if any step fails, the
// expenditure counter, pot counters, and recipient balances are exactly as
// they were before the call.

// Pay executes an atomic one-shot payment funded from the root domain's pot.
// The caller needs administration and funding authority resolved against
// callerPermissionDomainID/domainID, plus funding authority at the root
// scope (permissionDomainID must be the root domain, and its child skill
// index must resolve to domainID).
func (e *Engine) Pay(caller domain.Account, permissionDomainID, childSkillIndex, callerPermissionDomainID, callerChildSkillIndex uint64, recipient domain.Account, token domain.Token, amount int64, domainID, skillID uint64) (uint64, domain.ClaimSplit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRunning(); err != nil {
		return 0, domain.ClaimSplit{}, err
	}
	if permissionDomainID != e.cfg.RootDomainID {
		return 0, domain.ClaimSplit{}, domain.ErrPermissionDenied
	}
	if err := e.authorizePayment(caller, callerPermissionDomainID, callerChildSkillIndex, domainID); err != nil {
		return 0, domain.ClaimSplit{}, err
	}
	if err := e.authorize(caller, permissionDomainID, childSkillIndex, domainID, domain.OpFunding); err != nil {
		return 0, domain.ClaimSplit{}, err
	}

	rootInfo, ok := e.deps.Tree.Domain(e.cfg.RootDomainID)
	if !ok {
		return 0, domain.ClaimSplit{}, domain.ErrNoSuchDomain
	}
	return e.payFrom(caller, rootInfo.FundingPotID, recipient, token, amount, domainID, skillID)
}

// PayFundedFromDomain executes an atomic one-shot payment funded from the
// target domain's own pot, using the caller's domain-scoped authority only.
func (e *Engine) PayFundedFromDomain(caller domain.Account, callerPermissionDomainID, callerChildSkillIndex uint64, recipient domain.Account, token domain.Token, amount int64, domainID, skillID uint64) (uint64, domain.ClaimSplit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRunning(); err != nil {
		return 0, domain.ClaimSplit{}, err
	}
	if err := e.authorizePayment(caller, callerPermissionDomainID, callerChildSkillIndex, domainID); err != nil {
		return 0, domain.ClaimSplit{}, err
	}

	info, ok := e.deps.Tree.Domain(domainID)
	if !ok {
		return 0, domain.ClaimSplit{}, domain.ErrNoSuchDomain
	}
	return e.payFrom(caller, info.FundingPotID, recipient, token, amount, domainID, skillID)
}

// authorizePayment checks the dual authority a one-shot payment needs: the
// caller creates and mutates the expenditure (administration) and moves
// value into its pot (funding), both against the same domain chain.
func (e *Engine) authorizePayment(caller domain.Account, permissionDomainID, childSkillIndex, domainID uint64) error {
	if err := e.authorize(caller, permissionDomainID, childSkillIndex, domainID, domain.OpAdministration); err != nil {
		return err
	}
	return e.authorize(caller, permissionDomainID, childSkillIndex, domainID, domain.OpFunding)
}

// payFrom runs the composed steps under one journal. Caller holds the lock
// and has validated all authority.
func (e *Engine) payFrom(caller domain.Account, sourcePotID uint64, recipient domain.Account, token domain.Token, amount int64, domainID, skillID uint64) (uint64, domain.ClaimSplit, error) {
	if amount < 0 {
		return 0, domain.ClaimSplit{}, domain.ErrNegativeValue
	}
	source, err := e.pot(sourcePotID)
	if err != nil {
		return 0, domain.ClaimSplit{}, err
	}
	if skillID != 0 {
		if err := e.validateSkill(skillID); err != nil {
			return 0, domain.ClaimSplit{}, err
		}
	}

	t := newTxn()
	exp := e.createExpenditure(t, caller, domainID)
	if err := e.setPayout(t, exp, recipient, token, amount); err != nil {
		t.rollback()
		return 0, domain.ClaimSplit{}, err
	}
	if skillID != 0 {
		e.setSkill(t, exp, recipient, skillID)
	}
	expPot := e.pots[exp.FundingPotID]
	if err := e.movePotFunds(t, source, expPot, token, amount); err != nil {
		t.rollback()
		return 0, domain.ClaimSplit{}, err
	}
	if err := e.finalize(t, exp); err != nil {
		t.rollback()
		return 0, domain.ClaimSplit{}, err
	}
	split, err := e.claim(t, exp, recipient, token)
	if err != nil {
		t.rollback()
		return 0, domain.ClaimSplit{}, err
	}
	e.commit(t)
	return exp.ID, split, nil
}
