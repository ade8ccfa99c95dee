package domain

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// These interfaces define boundaries to external subsystems the expenditure
// core consumes but does not implement: access control, the domain/skill
// tree, token mechanics, the reputation-mining log, and pause control.
// Infrastructure implements them; the engine depends only on these.

// Operation is the kind of authority an account may hold in a domain.
type Operation int

const (
	OpAdministration Operation = iota
	OpFunding
	OpArbitration
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpAdministration:
		return "administration"
	case OpFunding:
		return "funding"
	case OpArbitration:
		return "arbitration"
	default:
		return "unknown"
	}
}

// Authority answers "can this account perform this operation in this domain".
type Authority interface {
	CanAct(account Account, domainID uint64, op Operation) bool
}

// DomainInfo is what the skill tree knows about a domain.
type DomainInfo struct {
	SkillID      uint64
	FundingPotID uint64
}

// SkillTree exposes the hierarchical domain/skill tree. The tree is
// externally owned; lookups are pure.
type SkillTree interface {
	// Domain returns the domain's skill and funding pot, or ok=false.
	Domain(domainID uint64) (DomainInfo, bool)

	// ChildSkillID resolves a parent skill's child by index, or ok=false.
	ChildSkillID(parentSkillID, childIndex uint64) (uint64, bool)

	SkillExists(skillID uint64) bool
	IsGlobalSkill(skillID uint64) bool
	IsDeprecatedSkill(skillID uint64) bool
}

// TokenBackend pushes settled value out of the system.
type TokenBackend interface {
	// Settle delivers one claim's split: the net to the recipient and the
	// fee to the collector. The two credits land atomically; on error
	// neither account has received anything, so the caller can unwind its
	// own state without stranding a partial payment.
	Settle(token Token, recipient Account, net int64, collector Account, fee int64) error
}

// ReputationLog records earned reputation against a skill.
type ReputationLog interface {
	AppendUpdate(account Account, skillID uint64, amount int64)
}

// Stopper is the process-wide pause flag, checked at the entry of every
// mutating operation.
type Stopper interface {
	IsStopped() bool
}
