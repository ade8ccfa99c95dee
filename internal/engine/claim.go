package engine

import (
	"fmt"
	"log"

	"github.com/escrowd-network/escrowd/internal/domain"
)

// ─── Payout & Claim Engine ──────────────────────────────────────────────────
// Any account may invoke Claim on behalf of any recipient: funds always go
// to the recorded recipient, so third-party claiming is safe by design.

// Claim pays out the committed (recipient, token) amount of a Finalized
// expenditure. The payout is zeroed exactly once; a second claim for the
// same pair is a zero-effect success.
func (e *Engine) Claim(id uint64, recipient domain.Account, token domain.Token) (domain.ClaimSplit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkRunning(); err != nil {
		return domain.ClaimSplit{}, err
	}
	exp, err := e.expenditure(id)
	if err != nil {
		return domain.ClaimSplit{}, err
	}

	t := newTxn()
	split, err := e.claim(t, exp, recipient, token)
	if err != nil {
		t.rollback()
		return domain.ClaimSplit{}, err
	}
	e.commit(t)
	return split, nil
}

// claim runs the full claim path under the journal: lifecycle and delay
// gates, payout zeroing, pot debits, token settlement, reputation deltas.
func (e *Engine) claim(t *txn, exp *domain.Expenditure, recipient domain.Account, token domain.Token) (domain.ClaimSplit, error) {
	switch {
	case exp.Status == domain.StatusCancelled:
		return domain.ClaimSplit{}, domain.ErrCancelled
	case exp.Status != domain.StatusFinalized:
		return domain.ClaimSplit{}, domain.ErrNotFinalized
	}

	slot, ok := exp.Recipients[recipient]
	if !ok {
		return domain.ClaimSplit{}, nil // nothing owed: no-op success
	}
	if e.now().Before(exp.FinalizedAt.Add(slot.ClaimDelay)) {
		return domain.ClaimSplit{}, domain.ErrTooEarly
	}

	payout := slot.Payouts[token]
	if payout == 0 {
		return domain.ClaimSplit{}, nil // already claimed or never owed
	}
	split := domain.SplitClaim(payout, slot.PayoutScalar)

	pot, err := e.pot(exp.FundingPotID)
	if err != nil {
		return domain.ClaimSplit{}, err
	}

	// Zero the payout and release the commitment. The scalar surplus
	// (payout − cash) stays in the pot for later reclamation.
	wasShort := pot.TokenShort(token)
	prevShortfalls := pot.Shortfalls
	slot.Payouts[token] = 0
	pot.Commitments[token] -= payout
	pot.RecountShortfall(token, wasShort)
	t.touchExp(exp.ID)
	t.touchPot(pot.ID)
	t.record(func() {
		slot.Payouts[token] = payout
		pot.Commitments[token] += payout
		pot.Shortfalls = prevShortfalls
	})
	if err := e.debitPot(t, pot, token, split.Cash); err != nil {
		return domain.ClaimSplit{}, err
	}

	// Outbound settlement is one atomic backend call: the recipient's net
	// and the collector's fee land together or not at all. On failure
	// nothing was delivered and the journal restores every counter above,
	// so a retry re-runs the whole claim from scratch.
	if split.Cash > 0 {
		if err := e.deps.Tokens.Settle(token, recipient, split.Net, e.cfg.FeeCollector, split.Fee); err != nil {
			return domain.ClaimSplit{}, fmt.Errorf("settle claim: %w", err)
		}
	}

	// Reputation: always against the expenditure's domain skill, and a
	// second delta of the same magnitude when a recipient skill was set.
	if split.Reputation > 0 {
		if info, ok := e.deps.Tree.Domain(exp.DomainID); ok {
			e.deps.Reputation.AppendUpdate(recipient, info.SkillID, split.Reputation)
		}
		if slot.SkillID != 0 {
			e.deps.Reputation.AppendUpdate(recipient, slot.SkillID, split.Reputation)
		}
	}

	expID := exp.ID
	t.onCommit(func() {
		if e.persist == nil {
			return
		}
		if err := e.persist.RecordClaim(expID, recipient, token, split, e.now()); err != nil {
			log.Printf("escrowd: record claim exp=%d recipient=%s: %v", expID, recipient, err)
		}
	})
	return split, nil
}
