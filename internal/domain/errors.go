package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency. Every error aborts
// the whole invocation: partial application is never observable.

var (
	// Authority / domain-chain errors
	ErrPermissionDenied = errors.New("caller lacks the required authority")
	ErrNoSuchDomain     = errors.New("domain does not exist")
	ErrBadChildSkill    = errors.New("child skill index does not resolve to the target domain")

	// Identity errors
	ErrNotFound     = errors.New("expenditure not found")
	ErrNoPot        = errors.New("funding pot not found")
	ErrNotOwner     = errors.New("caller is not the expenditure owner")
	ErrInvalidOwner = errors.New("new owner must be a nonempty account")

	// Lifecycle errors
	ErrNotActive    = errors.New("expenditure is not active")
	ErrNotFinalized = errors.New("expenditure is not finalized")
	ErrCancelled    = errors.New("expenditure is cancelled")
	ErrNotFunded    = errors.New("funding pot has unmet payout commitments")

	// Claim errors
	ErrTooEarly = errors.New("claim delay has not elapsed")

	// Skill errors
	ErrInvalidSkill    = errors.New("skill does not exist or is not a global skill")
	ErrDeprecatedSkill = errors.New("skill is deprecated")

	// Fund movement errors
	ErrBadExpenditureState = errors.New("expenditure state forbids this fund movement")
	ErrInsufficientFunds   = errors.New("pot balance is below the requested amount")
	ErrNegativeValue       = errors.New("negative amounts are not representable")

	// Process control
	ErrStopped = errors.New("process is stopped")
)
