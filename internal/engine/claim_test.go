package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/escrowd-network/escrowd/internal/domain"
)

// ─── Lifecycle Gates ────────────────────────────────────────────────────────

func TestClaim_RequiresFinalized(t *testing.T) {
	r := newRig(t)
	id := r.fundedExpenditure(t, 100)

	_, err := r.eng.Claim(id, worker, tokenGold)
	mustErr(t, err, domain.ErrNotFinalized)

	cancelled := r.fundedExpenditure(t, 100)
	r.eng.Cancel(teamLead, cancelled)
	_, err = r.eng.Claim(cancelled, worker, tokenGold)
	mustErr(t, err, domain.ErrCancelled)

	_, err = r.eng.Claim(0, worker, tokenGold)
	mustErr(t, err, domain.ErrNotFound)
}

// ─── Payout Delivery ────────────────────────────────────────────────────────

func TestClaim_DeliversNetAndFee(t *testing.T) {
	r := newRig(t)
	id := r.fundedExpenditure(t, 100)
	r.eng.Finalize(teamLead, id)

	split, err := r.eng.Claim(id, worker, tokenGold)
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if split.Net != 99 || split.Fee != 1 {
		t.Errorf("split = net %d fee %d, want 99/1", split.Net, split.Fee)
	}
	if got := r.treasury.Balance(tokenGold, worker); got != 99 {
		t.Errorf("worker balance = %d, want 99", got)
	}
	if got := r.treasury.Balance(tokenGold, collector); got != 1 {
		t.Errorf("fee collector balance = %d, want 1", got)
	}

	// Payout zeroed exactly once; the pot no longer owes anything.
	payout, _ := r.eng.GetPayout(id, worker, tokenGold)
	if payout != 0 {
		t.Errorf("payout after claim = %d, want 0", payout)
	}
	exp, _ := r.eng.Get(id)
	pot, _ := r.eng.GetPot(exp.FundingPotID)
	if pot.Commitments[tokenGold] != 0 || pot.Balances[tokenGold] != 0 {
		t.Errorf("pot after claim = commit %d balance %d, want 0/0",
			pot.Commitments[tokenGold], pot.Balances[tokenGold])
	}
}

func TestClaim_Idempotent(t *testing.T) {
	r := newRig(t)
	id := r.fundedExpenditure(t, 100)
	r.eng.Finalize(teamLead, id)

	first, err := r.eng.Claim(id, worker, tokenGold)
	if err != nil || first.Net == 0 {
		t.Fatalf("first Claim() = %+v, %v; want nonzero transfer", first, err)
	}
	second, err := r.eng.Claim(id, worker, tokenGold)
	if err != nil {
		t.Fatalf("second Claim() error: %v (must be a zero-effect success)", err)
	}
	if second != (domain.ClaimSplit{}) {
		t.Errorf("second Claim() = %+v, want zero split", second)
	}
	if got := r.treasury.Balance(tokenGold, worker); got != first.Net {
		t.Errorf("worker balance = %d after double claim, want %d", got, first.Net)
	}
}

func TestClaim_ByThirdParty(t *testing.T) {
	r := newRig(t)
	id := r.fundedExpenditure(t, 100)
	r.eng.Finalize(teamLead, id)

	// Anyone may trigger the claim; value still lands on the recipient.
	if _, err := r.eng.Claim(id, worker, tokenGold); err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if got := r.treasury.Balance(tokenGold, worker); got != 99 {
		t.Errorf("worker balance = %d, want 99", got)
	}
	if got := r.treasury.Balance(tokenGold, outsider); got != 0 {
		t.Errorf("outsider balance = %d, want 0", got)
	}
}

// ─── Scalar Asymmetry ───────────────────────────────────────────────────────

func TestClaim_ScalarBelowOne(t *testing.T) {
	r := newRig(t)
	id := r.fundedExpenditure(t, 100)
	r.eng.Finalize(teamLead, id)
	r.eng.SetPayoutScalar(arbiter, rootDomain, 0, id, worker, decimal.RequireFromString("0.5"))

	split, err := r.eng.Claim(id, worker, tokenGold)
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	// 100 × 0.5 = 50 cash, 1 fee → 49 net; reputation delta 50.
	if split.Net != 49 || split.Fee != 1 {
		t.Errorf("split = net %d fee %d, want 49/1", split.Net, split.Fee)
	}
	if got := r.rep.Total(worker, teamSkill); got != 50 {
		t.Errorf("domain reputation = %d, want 50", got)
	}

	// The unscaled surplus stays in the pot.
	exp, _ := r.eng.Get(id)
	pot, _ := r.eng.GetPot(exp.FundingPotID)
	if pot.Balances[tokenGold] != 50 {
		t.Errorf("pot surplus = %d, want 50", pot.Balances[tokenGold])
	}
}

func TestClaim_ScalarAboveOneBoostsReputationOnly(t *testing.T) {
	r := newRig(t)
	id := r.fundedExpenditure(t, 100)
	r.eng.Finalize(teamLead, id)
	r.eng.SetPayoutScalar(arbiter, rootDomain, 0, id, worker, decimal.NewFromInt(3))

	split, err := r.eng.Claim(id, worker, tokenGold)
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	// Cash stays capped at the committed 100; reputation scales to 300.
	if split.Cash != 100 || split.Net != 99 {
		t.Errorf("split = cash %d net %d, want 100/99", split.Cash, split.Net)
	}
	if split.Reputation != 300 {
		t.Errorf("Reputation = %d, want 300", split.Reputation)
	}
	if got := r.rep.Total(worker, teamSkill); got != 300 {
		t.Errorf("domain reputation = %d, want 300", got)
	}
}

// ─── Reputation Deltas ──────────────────────────────────────────────────────

func TestClaim_SkillEmitsSecondDelta(t *testing.T) {
	r := newRig(t)
	id, _ := r.eng.CreateExpenditure(teamLead, teamDomain, 0, teamDomain)
	r.eng.SetRecipientPayout(teamLead, id, worker, tokenGold, 100)
	r.eng.SetRecipientSkill(teamLead, id, worker, codingSkill)
	exp, _ := r.eng.Get(id)
	r.eng.Deposit(teamLead, r.teamPot, tokenGold, 100)
	r.eng.MovePotFunds(teamLead, teamDomain, 0, 0, r.teamPot, exp.FundingPotID, 100, tokenGold)
	r.eng.Finalize(teamLead, id)

	if _, err := r.eng.Claim(id, worker, tokenGold); err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if got := r.rep.Len(); got != 2 {
		t.Fatalf("reputation updates = %d, want 2 (domain + skill)", got)
	}
	if got := r.rep.Total(worker, teamSkill); got != 100 {
		t.Errorf("domain skill delta = %d, want 100", got)
	}
	if got := r.rep.Total(worker, codingSkill); got != 100 {
		t.Errorf("recipient skill delta = %d, want 100", got)
	}
}

func TestClaim_NoSkillEmitsSingleDelta(t *testing.T) {
	r := newRig(t)
	id := r.fundedExpenditure(t, 100)
	r.eng.Finalize(teamLead, id)

	r.eng.Claim(id, worker, tokenGold)
	if got := r.rep.Len(); got != 1 {
		t.Errorf("reputation updates = %d, want 1 (domain only)", got)
	}
}

// ─── Claim Delay ────────────────────────────────────────────────────────────

func TestClaim_DelayBoundary(t *testing.T) {
	r := newRig(t)
	id := r.fundedExpenditure(t, 100)
	r.eng.SetClaimDelay(arbiter, rootDomain, 0, id, worker, time.Hour)
	r.eng.Finalize(teamLead, id)

	// One tick before the boundary: rejected.
	r.clock.Advance(time.Hour - time.Nanosecond)
	_, err := r.eng.Claim(id, worker, tokenGold)
	mustErr(t, err, domain.ErrTooEarly)

	// Exactly at finalizedTimestamp + claimDelay: allowed.
	r.clock.Advance(time.Nanosecond)
	if _, err := r.eng.Claim(id, worker, tokenGold); err != nil {
		t.Fatalf("Claim() at boundary error: %v", err)
	}
}

// ─── Atomicity on Collaborator Failure ──────────────────────────────────────

func TestClaim_SettlementFailureDeliversNothing(t *testing.T) {
	r := newRig(t)
	id := r.fundedExpenditure(t, 100)
	r.eng.Finalize(teamLead, id)

	r.treasury.FailNext(domain.ErrInsufficientFunds)
	if _, err := r.eng.Claim(id, worker, tokenGold); err == nil {
		t.Fatal("Claim() succeeded despite settlement failure")
	}

	// The settlement is all-or-nothing: neither the recipient's net nor
	// the collector's fee was delivered, so the restored payout cannot
	// duplicate value when it is claimed again.
	if got := r.treasury.Balance(tokenGold, worker); got != 0 {
		t.Fatalf("worker balance after failed claim = %d, want 0", got)
	}
	if got := r.treasury.Balance(tokenGold, collector); got != 0 {
		t.Fatalf("collector balance after failed claim = %d, want 0", got)
	}

	// Nothing moved, nothing was zeroed; the retry succeeds from scratch.
	payout, _ := r.eng.GetPayout(id, worker, tokenGold)
	if payout != 100 {
		t.Fatalf("payout after failed claim = %d, want 100", payout)
	}
	exp, _ := r.eng.Get(id)
	pot, _ := r.eng.GetPot(exp.FundingPotID)
	if pot.Balances[tokenGold] != 100 || pot.Commitments[tokenGold] != 100 {
		t.Fatalf("pot after failed claim = balance %d commit %d, want 100/100",
			pot.Balances[tokenGold], pot.Commitments[tokenGold])
	}
	if r.rep.Len() != 0 {
		t.Fatalf("reputation updates after failed claim = %d, want 0", r.rep.Len())
	}

	if _, err := r.eng.Claim(id, worker, tokenGold); err != nil {
		t.Fatalf("retry Claim() error: %v", err)
	}
	if got := r.treasury.Balance(tokenGold, worker); got != 99 {
		t.Fatalf("worker balance after retry = %d, want 99", got)
	}
	if got := r.treasury.Balance(tokenGold, collector); got != 1 {
		t.Fatalf("collector balance after retry = %d, want 1", got)
	}
}
