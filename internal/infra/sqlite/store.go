package sqlite

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/escrowd-network/escrowd/internal/domain"
)

// ─── Pot Persistence ────────────────────────────────────────────────────────

// SavePot upserts a pot and its per-token ledger rows.
func (d *DB) SavePot(pot *domain.FundingPot) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO pots (id, backs, backs_id) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET backs = excluded.backs, backs_id = excluded.backs_id`,
		pot.ID, int(pot.Backs), pot.BacksID); err != nil {
		return fmt.Errorf("save pot %d: %w", pot.ID, err)
	}
	if _, err := tx.Exec(`DELETE FROM pot_balances WHERE pot_id = ?`, pot.ID); err != nil {
		return err
	}
	tokens := make(map[domain.Token]bool)
	for tok := range pot.Balances {
		tokens[tok] = true
	}
	for tok := range pot.Commitments {
		tokens[tok] = true
	}
	for tok := range tokens {
		if _, err := tx.Exec(`
			INSERT INTO pot_balances (pot_id, token, balance, commitment) VALUES (?, ?, ?, ?)`,
			pot.ID, string(tok), pot.Balances[tok], pot.Commitments[tok]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ─── Expenditure Persistence ────────────────────────────────────────────────

// SaveExpenditure upserts an expenditure's header, recipient slots, and
// payout rows.
func (d *DB) SaveExpenditure(exp *domain.Expenditure) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	finalized := ""
	if !exp.FinalizedAt.IsZero() {
		finalized = exp.FinalizedAt.UTC().Format(time.RFC3339Nano)
	}
	if _, err := tx.Exec(`
		INSERT INTO expenditures (id, status, owner, funding_pot_id, domain_id, finalized_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status       = excluded.status,
			owner        = excluded.owner,
			finalized_at = excluded.finalized_at`,
		exp.ID, int(exp.Status), string(exp.Owner), exp.FundingPotID, exp.DomainID, finalized); err != nil {
		return fmt.Errorf("save expenditure %d: %w", exp.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM recipients WHERE expenditure_id = ?`, exp.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM payouts WHERE expenditure_id = ?`, exp.ID); err != nil {
		return err
	}
	for account, slot := range exp.Recipients {
		if _, err := tx.Exec(`
			INSERT INTO recipients (expenditure_id, account, skill_id, payout_scalar, claim_delay_ns)
			VALUES (?, ?, ?, ?, ?)`,
			exp.ID, string(account), slot.SkillID, slot.PayoutScalar.String(), int64(slot.ClaimDelay)); err != nil {
			return err
		}
		for tok, amount := range slot.Payouts {
			if _, err := tx.Exec(`
				INSERT INTO payouts (expenditure_id, account, token, amount) VALUES (?, ?, ?, ?)`,
				exp.ID, string(account), string(tok), amount); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// ─── Claims Journal ─────────────────────────────────────────────────────────

// RecordClaim appends one successful claim to the audit journal.
func (d *DB) RecordClaim(expID uint64, recipient domain.Account, token domain.Token, split domain.ClaimSplit, at time.Time) error {
	_, err := d.db.Exec(`
		INSERT INTO claims (expenditure_id, account, token, cash, fee, net, reputation, claimed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		expID, string(recipient), string(token),
		split.Cash, split.Fee, split.Net, split.Reputation,
		at.UTC().Format(time.RFC3339Nano))
	return err
}

// ClaimRecord is one row of the claims journal.
type ClaimRecord struct {
	ExpenditureID uint64
	Account       domain.Account
	Token         domain.Token
	Cash          int64
	Fee           int64
	Net           int64
	Reputation    int64
	ClaimedAt     time.Time
}

// ClaimsFor returns the journal rows for one expenditure, oldest first.
func (d *DB) ClaimsFor(expID uint64) ([]ClaimRecord, error) {
	rows, err := d.db.Query(`
		SELECT expenditure_id, account, token, cash, fee, net, reputation, claimed_at
		FROM claims WHERE expenditure_id = ? ORDER BY id`, expID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClaimRecord
	for rows.Next() {
		var rec ClaimRecord
		var account, token, claimedAt string
		if err := rows.Scan(&rec.ExpenditureID, &account, &token,
			&rec.Cash, &rec.Fee, &rec.Net, &rec.Reputation, &claimedAt); err != nil {
			return nil, err
		}
		rec.Account = domain.Account(account)
		rec.Token = domain.Token(token)
		if ts, err := time.Parse(time.RFC3339Nano, claimedAt); err == nil {
			rec.ClaimedAt = ts
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ─── Boot Restore ───────────────────────────────────────────────────────────

// LoadState reads every pot and expenditure back into domain form. Shortfall
// counters are re-derived from the persisted balances and commitments.
func (d *DB) LoadState() ([]*domain.FundingPot, []*domain.Expenditure, error) {
	pots, err := d.loadPots()
	if err != nil {
		return nil, nil, err
	}
	exps, err := d.loadExpenditures()
	if err != nil {
		return nil, nil, err
	}
	return pots, exps, nil
}

func (d *DB) loadPots() ([]*domain.FundingPot, error) {
	rows, err := d.db.Query(`SELECT id, backs, backs_id FROM pots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uint64]*domain.FundingPot)
	var pots []*domain.FundingPot
	for rows.Next() {
		var id, backsID uint64
		var backs int
		if err := rows.Scan(&id, &backs, &backsID); err != nil {
			return nil, err
		}
		pot := domain.NewFundingPot(id, domain.PotType(backs), backsID)
		byID[id] = pot
		pots = append(pots, pot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balances, err := d.db.Query(`SELECT pot_id, token, balance, commitment FROM pot_balances`)
	if err != nil {
		return nil, err
	}
	defer balances.Close()
	for balances.Next() {
		var potID uint64
		var token string
		var balance, commitment int64
		if err := balances.Scan(&potID, &token, &balance, &commitment); err != nil {
			return nil, err
		}
		pot, ok := byID[potID]
		if !ok {
			continue
		}
		tok := domain.Token(token)
		pot.Balances[tok] = balance
		pot.Commitments[tok] = commitment
		if pot.TokenShort(tok) {
			pot.Shortfalls++
		}
	}
	return pots, balances.Err()
}

func (d *DB) loadExpenditures() ([]*domain.Expenditure, error) {
	rows, err := d.db.Query(`
		SELECT id, status, owner, funding_pot_id, domain_id, finalized_at
		FROM expenditures ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uint64]*domain.Expenditure)
	var exps []*domain.Expenditure
	for rows.Next() {
		var id, potID, domainID uint64
		var status int
		var owner, finalized string
		if err := rows.Scan(&id, &status, &owner, &potID, &domainID, &finalized); err != nil {
			return nil, err
		}
		exp := &domain.Expenditure{
			ID:           id,
			Status:       domain.ExpenditureStatus(status),
			Owner:        domain.Account(owner),
			FundingPotID: potID,
			DomainID:     domainID,
			Recipients:   make(map[domain.Account]*domain.RecipientSlot),
		}
		if finalized != "" {
			ts, err := time.Parse(time.RFC3339Nano, finalized)
			if err != nil {
				return nil, fmt.Errorf("expenditure %d: bad finalized_at %q: %w", id, finalized, err)
			}
			exp.FinalizedAt = ts
		}
		byID[id] = exp
		exps = append(exps, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := d.loadRecipients(byID); err != nil {
		return nil, err
	}
	return exps, nil
}

func (d *DB) loadRecipients(byID map[uint64]*domain.Expenditure) error {
	rows, err := d.db.Query(`
		SELECT expenditure_id, account, skill_id, payout_scalar, claim_delay_ns FROM recipients`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var expID, skillID uint64
		var account, scalar string
		var delayNs int64
		if err := rows.Scan(&expID, &account, &skillID, &scalar, &delayNs); err != nil {
			return err
		}
		exp, ok := byID[expID]
		if !ok {
			continue
		}
		slot := domain.NewRecipientSlot()
		slot.SkillID = skillID
		slot.ClaimDelay = time.Duration(delayNs)
		parsed, err := decimal.NewFromString(scalar)
		if err != nil {
			return fmt.Errorf("expenditure %d recipient %s: bad scalar %q: %w", expID, account, scalar, err)
		}
		slot.PayoutScalar = parsed
		exp.Recipients[domain.Account(account)] = slot
	}
	if err := rows.Err(); err != nil {
		return err
	}

	payouts, err := d.db.Query(`SELECT expenditure_id, account, token, amount FROM payouts`)
	if err != nil {
		return err
	}
	defer payouts.Close()
	for payouts.Next() {
		var expID uint64
		var account, token string
		var amount int64
		if err := payouts.Scan(&expID, &account, &token, &amount); err != nil {
			return err
		}
		exp, ok := byID[expID]
		if !ok {
			continue
		}
		exp.Recipient(domain.Account(account)).Payouts[domain.Token(token)] = amount
	}
	return payouts.Err()
}
