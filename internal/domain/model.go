// Package domain contains pure business types with ZERO infrastructure imports.
// It depends on nothing but the decimal type used for payout scalars.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Identity Types ─────────────────────────────────────────────────────────

// Account is an opaque account identifier (caller, owner, recipient).
type Account string

// Token identifies an asset. The empty token denotes the native asset.
type Token string

// TokenNative is the native asset of the network.
const TokenNative Token = ""

// ─── Funding Pot Types ──────────────────────────────────────────────────────

// PotType tags what a funding pot backs.
type PotType int

const (
	PotUnassigned PotType = iota
	PotDomain
	PotTask
	PotRewards
	PotPayout
	PotExpenditure
)

// String returns the lowercase tag name.
func (p PotType) String() string {
	switch p {
	case PotDomain:
		return "domain"
	case PotTask:
		return "task"
	case PotRewards:
		return "rewards"
	case PotPayout:
		return "payout"
	case PotExpenditure:
		return "expenditure"
	default:
		return "unassigned"
	}
}

// FundingPot is a discrete pool of committed value. Balances record inflow
// per token; Commitments record the aggregate owed per token. Shortfalls
// counts the tokens where commitment exceeds balance; a pot with a nonzero
// count cannot back a Finalized expenditure.
type FundingPot struct {
	ID          uint64          `json:"id"`
	Backs       PotType         `json:"backs"`
	BacksID     uint64          `json:"backs_id"`
	Balances    map[Token]int64 `json:"balances"`
	Commitments map[Token]int64 `json:"commitments"`
	Shortfalls  int             `json:"shortfalls"`
}

// NewFundingPot returns an empty pot backing the given entity.
func NewFundingPot(id uint64, backs PotType, backsID uint64) *FundingPot {
	return &FundingPot{
		ID:          id,
		Backs:       backs,
		BacksID:     backsID,
		Balances:    make(map[Token]int64),
		Commitments: make(map[Token]int64),
	}
}

// TokenShort reports whether committed outflow exceeds inflow for a token.
func (p *FundingPot) TokenShort(token Token) bool {
	return p.Commitments[token] > p.Balances[token]
}

// RecountShortfall re-derives the shortfall counter contribution of one token
// after its balance or commitment changed. wasShort is the token's solvency
// state from before the change.
func (p *FundingPot) RecountShortfall(token Token, wasShort bool) {
	short := p.TokenShort(token)
	switch {
	case short && !wasShort:
		p.Shortfalls++
	case !short && wasShort:
		p.Shortfalls--
	}
}

// ─── Expenditure Types ──────────────────────────────────────────────────────

// ExpenditureStatus is the lifecycle state of an expenditure.
// Active is initial; Cancelled and Finalized are terminal.
type ExpenditureStatus int

const (
	StatusActive ExpenditureStatus = iota
	StatusCancelled
	StatusFinalized
)

// String returns the status name.
func (s ExpenditureStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCancelled:
		return "cancelled"
	case StatusFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further transitions.
func (s ExpenditureStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusFinalized
}

// Expenditure is a pending multi-recipient, multi-token disbursement
// commitment, scoped to one permission domain and bound 1:1 to a funding pot.
type Expenditure struct {
	ID           uint64                     `json:"id"`
	Status       ExpenditureStatus          `json:"status"`
	Owner        Account                    `json:"owner"`
	FundingPotID uint64                     `json:"funding_pot_id"`
	DomainID     uint64                     `json:"domain_id"`
	FinalizedAt  time.Time                  `json:"finalized_at,omitempty"` // zero until Finalized
	Recipients   map[Account]*RecipientSlot `json:"recipients"`
}

// Recipient returns the slot for an account, creating it on first touch.
// Slots persist after claim (amounts zeroed, scalar/delay kept for audit).
func (e *Expenditure) Recipient(account Account) *RecipientSlot {
	slot, ok := e.Recipients[account]
	if !ok {
		slot = NewRecipientSlot()
		e.Recipients[account] = slot
	}
	return slot
}

// RecipientSlot is the per-recipient record of an expenditure.
type RecipientSlot struct {
	SkillID      uint64          `json:"skill_id"`      // 0 = no skill set
	PayoutScalar decimal.Decimal `json:"payout_scalar"` // unit 1.0; defaults to 1
	ClaimDelay   time.Duration   `json:"claim_delay"`
	Payouts      map[Token]int64 `json:"payouts"`
}

// NewRecipientSlot returns a slot with the default scalar of 1.0.
func NewRecipientSlot() *RecipientSlot {
	return &RecipientSlot{
		PayoutScalar: decimal.NewFromInt(1),
		Payouts:      make(map[Token]int64),
	}
}
