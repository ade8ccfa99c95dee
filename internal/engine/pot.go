package engine

import (
	"github.com/escrowd-network/escrowd/internal/domain"
)

// ─── Funding Pot Ledger ─────────────────────────────────────────────────────
// Pots track aggregate committed outflow per token and expose the shortfall
// counter consumed by finalize. Value moves between pots in aggregate; the
// per-account split lives on the expenditure's recipient slots.

// allocatePot assigns the next pot id and registers an empty pot.
func (e *Engine) allocatePot(t *txn, backs domain.PotType, backsID uint64) *domain.FundingPot {
	e.potCount++
	pot := domain.NewFundingPot(e.potCount, backs, backsID)
	e.pots[pot.ID] = pot
	t.touchPot(pot.ID)
	t.record(func() {
		delete(e.pots, pot.ID)
		e.potCount--
	})
	return pot
}

// AllocateDomainPot creates the funding pot backing a domain. Called at
// bootstrap when a domain is registered in the skill tree; the returned pot
// id is what the tree reports as the domain's FundingPotID.
func (e *Engine) AllocateDomainPot(domainID uint64) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := newTxn()
	pot := e.allocatePot(t, domain.PotDomain, domainID)
	e.commit(t)
	return pot.ID
}

// potDomainID resolves the permission domain a pot belongs to.
func (e *Engine) potDomainID(pot *domain.FundingPot) uint64 {
	switch pot.Backs {
	case domain.PotDomain:
		return pot.BacksID
	case domain.PotExpenditure:
		if exp, ok := e.expenditures[pot.BacksID]; ok {
			return exp.DomainID
		}
	}
	return 0
}

// Deposit records external value arriving in a pot and recomputes the
// token's shortfall state. Requires funding authority in the pot's domain.
// Expenditure pots accept deposits only while the expenditure is Active:
// value landing in a terminal pot could never be released again.
func (e *Engine) Deposit(caller domain.Account, potID uint64, token domain.Token, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRunning(); err != nil {
		return err
	}
	if amount < 0 {
		return domain.ErrNegativeValue
	}
	pot, err := e.pot(potID)
	if err != nil {
		return err
	}
	potDomain := e.potDomainID(pot)
	if !e.deps.Authority.CanAct(caller, potDomain, domain.OpFunding) {
		return domain.ErrPermissionDenied
	}
	if pot.Backs == domain.PotExpenditure {
		exp, err := e.expenditure(pot.BacksID)
		if err != nil {
			return err
		}
		if exp.Status != domain.StatusActive {
			return domain.ErrBadExpenditureState
		}
	}

	t := newTxn()
	e.creditPot(t, pot, token, amount)
	e.commit(t)
	return nil
}

// creditPot adds inflow to a pot under the journal.
func (e *Engine) creditPot(t *txn, pot *domain.FundingPot, token domain.Token, amount int64) {
	wasShort := pot.TokenShort(token)
	prevShortfalls := pot.Shortfalls
	pot.Balances[token] += amount
	pot.RecountShortfall(token, wasShort)
	t.touchPot(pot.ID)
	t.record(func() {
		pot.Balances[token] -= amount
		pot.Shortfalls = prevShortfalls
	})
}

// debitPot removes value from a pot under the journal.
func (e *Engine) debitPot(t *txn, pot *domain.FundingPot, token domain.Token, amount int64) error {
	if pot.Balances[token] < amount {
		return domain.ErrInsufficientFunds
	}
	wasShort := pot.TokenShort(token)
	prevShortfalls := pot.Shortfalls
	pot.Balances[token] -= amount
	pot.RecountShortfall(token, wasShort)
	t.touchPot(pot.ID)
	t.record(func() {
		pot.Balances[token] += amount
		pot.Shortfalls = prevShortfalls
	})
	return nil
}

// MovePotFunds moves value between two pots. The caller must hold funding
// authority in fromPermissionDomainID, which must resolve (via the child
// skill indexes) to both the source and destination pots' domains.
//
// Direction rules: value flows freely INTO an Active expenditure's pot, but
// OUT of an expenditure pot only once that expenditure is Cancelled; a live
// commitment cannot be drained mid-flight.
func (e *Engine) MovePotFunds(caller domain.Account, fromPermissionDomainID, fromChildSkillIndex, toChildSkillIndex, fromPotID, toPotID uint64, amount int64, token domain.Token) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRunning(); err != nil {
		return err
	}
	if amount < 0 {
		return domain.ErrNegativeValue
	}

	from, err := e.pot(fromPotID)
	if err != nil {
		return err
	}
	to, err := e.pot(toPotID)
	if err != nil {
		return err
	}
	if err := e.authorize(caller, fromPermissionDomainID, fromChildSkillIndex, e.potDomainID(from), domain.OpFunding); err != nil {
		return err
	}
	if err := e.authorize(caller, fromPermissionDomainID, toChildSkillIndex, e.potDomainID(to), domain.OpFunding); err != nil {
		return err
	}

	t := newTxn()
	if err := e.movePotFunds(t, from, to, token, amount); err != nil {
		t.rollback()
		return err
	}
	e.commit(t)
	return nil
}

// movePotFunds applies the direction rules and moves value under the journal.
func (e *Engine) movePotFunds(t *txn, from, to *domain.FundingPot, token domain.Token, amount int64) error {
	if from.Backs == domain.PotExpenditure {
		exp, err := e.expenditure(from.BacksID)
		if err != nil {
			return err
		}
		if exp.Status != domain.StatusCancelled {
			return domain.ErrBadExpenditureState
		}
	}
	if to.Backs == domain.PotExpenditure {
		exp, err := e.expenditure(to.BacksID)
		if err != nil {
			return err
		}
		if exp.Status != domain.StatusActive {
			return domain.ErrBadExpenditureState
		}
	}
	if err := e.debitPot(t, from, token, amount); err != nil {
		return err
	}
	e.creditPot(t, to, token, amount)
	return nil
}
