// Package engine implements the expenditure accounting core: the funding pot
// ledger, the expenditure state machine, the payout/claim engine, and the
// atomic payment orchestrator.
//
// Execution model: a single global serial order. Every exported mutator takes
// the engine lock, validates, then commits: an invocation either applies all
// of its state changes or none. The status/ownership/authority preconditions
// are the concurrency control; no further lock discipline is needed.
package engine

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/escrowd-network/escrowd/internal/domain"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config controls engine behavior.
type Config struct {
	RootDomainID uint64         // top-level domain (default: 1)
	FeeCollector domain.Account // receives the network fee at claim time
}

// DefaultConfig returns engine defaults.
func DefaultConfig() Config {
	return Config{
		RootDomainID: 1,
		FeeCollector: "fee-collector",
	}
}

// Deps are the external collaborators the core consumes as black boxes.
type Deps struct {
	Authority  domain.Authority
	Tree       domain.SkillTree
	Tokens     domain.TokenBackend
	Reputation domain.ReputationLog
	Stopper    domain.Stopper
}

// Persister receives committed state after each successful operation.
// Persistence is write-behind: a failure is logged, never unwound into the
// already committed operation.
type Persister interface {
	SavePot(pot *domain.FundingPot) error
	SaveExpenditure(exp *domain.Expenditure) error
	RecordClaim(expID uint64, recipient domain.Account, token domain.Token, split domain.ClaimSplit, at time.Time) error
}

// ─── Engine ─────────────────────────────────────────────────────────────────

// Engine owns the pot and expenditure arena tables. Identifiers are assigned
// by monotonic counters starting at 1; id 0 is never valid.
type Engine struct {
	mu   sync.Mutex
	cfg  Config
	deps Deps
	now  func() time.Time

	pots         map[uint64]*domain.FundingPot
	expenditures map[uint64]*domain.Expenditure
	potCount     uint64
	expCount     uint64

	persist Persister // nil = in-memory only
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects a clock (tests pin time with this).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPersister attaches write-behind persistence.
func WithPersister(p Persister) Option {
	return func(e *Engine) { e.persist = p }
}

// New creates an engine with empty tables.
func New(cfg Config, deps Deps, opts ...Option) *Engine {
	e := &Engine{
		cfg:          cfg,
		deps:         deps,
		now:          time.Now,
		pots:         make(map[uint64]*domain.FundingPot),
		expenditures: make(map[uint64]*domain.Expenditure),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Restore seeds the arena tables from persisted state. Counters resume past
// the highest restored id. Call before serving traffic.
func (e *Engine) Restore(pots []*domain.FundingPot, exps []*domain.Expenditure) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, pot := range pots {
		e.pots[pot.ID] = pot
		if pot.ID > e.potCount {
			e.potCount = pot.ID
		}
	}
	for _, exp := range exps {
		e.expenditures[exp.ID] = exp
		if exp.ID > e.expCount {
			e.expCount = exp.ID
		}
	}
}

// ─── Transaction Journal ────────────────────────────────────────────────────
// Primitives record an undo for every state mutation. When a step of a
// composed operation fails, the journal replays the undos in reverse so the
// whole invocation has no effect.

type txn struct {
	undo  []func()
	after []func() // write-behind hooks, run only on commit
	dirty struct {
		pots map[uint64]bool
		exps map[uint64]bool
	}
}

func newTxn() *txn {
	t := &txn{}
	t.dirty.pots = make(map[uint64]bool)
	t.dirty.exps = make(map[uint64]bool)
	return t
}

func (t *txn) record(undo func())   { t.undo = append(t.undo, undo) }
func (t *txn) onCommit(hook func()) { t.after = append(t.after, hook) }

func (t *txn) touchPot(id uint64) { t.dirty.pots[id] = true }
func (t *txn) touchExp(id uint64) { t.dirty.exps[id] = true }

func (t *txn) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}

// commit flushes dirty entities to the persister. Must be called with the
// engine lock held and only after every step succeeded.
func (e *Engine) commit(t *txn) {
	for _, hook := range t.after {
		hook()
	}
	if e.persist == nil {
		return
	}
	for id := range t.dirty.pots {
		if pot, ok := e.pots[id]; ok {
			if err := e.persist.SavePot(pot); err != nil {
				log.Printf("escrowd: persist pot %d: %v", id, err)
			}
		}
	}
	for id := range t.dirty.exps {
		if exp, ok := e.expenditures[id]; ok {
			if err := e.persist.SaveExpenditure(exp); err != nil {
				log.Printf("escrowd: persist expenditure %d: %v", id, err)
			}
		}
	}
}

// ─── Shared Preconditions ───────────────────────────────────────────────────

// checkRunning rejects every mutating operation while the pause flag is set.
func (e *Engine) checkRunning() error {
	if e.deps.Stopper != nil && e.deps.Stopper.IsStopped() {
		return domain.ErrStopped
	}
	return nil
}

// authorize validates the cross-domain permission chain: the caller must hold
// op authority in permissionDomainID, and permissionDomainID/childSkillIndex
// must resolve to targetDomainID: either the same domain, or a descendant
// reached via the skill tree's child-index lookup.
func (e *Engine) authorize(caller domain.Account, permissionDomainID, childSkillIndex, targetDomainID uint64, op domain.Operation) error {
	permInfo, ok := e.deps.Tree.Domain(permissionDomainID)
	if !ok {
		return domain.ErrNoSuchDomain
	}
	targetInfo, ok := e.deps.Tree.Domain(targetDomainID)
	if !ok {
		return domain.ErrNoSuchDomain
	}
	if !e.deps.Authority.CanAct(caller, permissionDomainID, op) {
		return domain.ErrPermissionDenied
	}
	if permissionDomainID == targetDomainID {
		return nil
	}
	childSkill, ok := e.deps.Tree.ChildSkillID(permInfo.SkillID, childSkillIndex)
	if !ok || childSkill != targetInfo.SkillID {
		return domain.ErrBadChildSkill
	}
	return nil
}

// expenditure looks up an expenditure by id. Unknown ids (including 0) fail
// with ErrNotFound.
func (e *Engine) expenditure(id uint64) (*domain.Expenditure, error) {
	exp, ok := e.expenditures[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return exp, nil
}

// pot looks up a funding pot by id.
func (e *Engine) pot(id uint64) (*domain.FundingPot, error) {
	pot, ok := e.pots[id]
	if !ok {
		return nil, domain.ErrNoPot
	}
	return pot, nil
}

// ─── Read-Only Surface ──────────────────────────────────────────────────────

// Count returns the number of expenditures ever created.
func (e *Engine) Count() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expCount
}

// PotCount returns the number of funding pots ever created.
func (e *Engine) PotCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.potCount
}

// ExpenditureView is a stable copy of an expenditure's header fields.
type ExpenditureView struct {
	ID           uint64                   `json:"id"`
	Status       domain.ExpenditureStatus `json:"status"`
	Owner        domain.Account           `json:"owner"`
	FundingPotID uint64                   `json:"funding_pot_id"`
	DomainID     uint64                   `json:"domain_id"`
	FinalizedAt  time.Time                `json:"finalized_at"`
}

// Get returns a copy of an expenditure's header.
func (e *Engine) Get(id uint64) (ExpenditureView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exp, err := e.expenditure(id)
	if err != nil {
		return ExpenditureView{}, err
	}
	return ExpenditureView{
		ID:           exp.ID,
		Status:       exp.Status,
		Owner:        exp.Owner,
		FundingPotID: exp.FundingPotID,
		DomainID:     exp.DomainID,
		FinalizedAt:  exp.FinalizedAt,
	}, nil
}

// GetRecipient returns a copy of a recipient's slot. A recipient that was
// never touched reports the defaults (scalar 1, no delay, no skill).
func (e *Engine) GetRecipient(id uint64, recipient domain.Account) (domain.RecipientSlot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exp, err := e.expenditure(id)
	if err != nil {
		return domain.RecipientSlot{}, err
	}
	slot, ok := exp.Recipients[recipient]
	if !ok {
		return *domain.NewRecipientSlot(), nil
	}
	out := *slot
	out.Payouts = make(map[domain.Token]int64, len(slot.Payouts))
	for tok, amt := range slot.Payouts {
		out.Payouts[tok] = amt
	}
	return out, nil
}

// GetPayout returns the amount owed to (recipient, token). Zero after claim.
func (e *Engine) GetPayout(id uint64, recipient domain.Account, token domain.Token) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exp, err := e.expenditure(id)
	if err != nil {
		return 0, err
	}
	slot, ok := exp.Recipients[recipient]
	if !ok {
		return 0, nil
	}
	return slot.Payouts[token], nil
}

// PotView is a stable copy of a funding pot.
type PotView struct {
	ID          uint64                 `json:"id"`
	Backs       domain.PotType         `json:"backs"`
	BacksID     uint64                 `json:"backs_id"`
	Balances    map[domain.Token]int64 `json:"balances"`
	Commitments map[domain.Token]int64 `json:"commitments"`
	Shortfalls  int                    `json:"shortfalls"`
}

// GetPot returns a copy of a funding pot.
func (e *Engine) GetPot(id uint64) (PotView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pot, err := e.pot(id)
	if err != nil {
		return PotView{}, err
	}
	view := PotView{
		ID:          pot.ID,
		Backs:       pot.Backs,
		BacksID:     pot.BacksID,
		Balances:    make(map[domain.Token]int64, len(pot.Balances)),
		Commitments: make(map[domain.Token]int64, len(pot.Commitments)),
		Shortfalls:  pot.Shortfalls,
	}
	for tok, amt := range pot.Balances {
		view.Balances[tok] = amt
	}
	for tok, amt := range pot.Commitments {
		view.Commitments[tok] = amt
	}
	return view, nil
}

// ─── Stop Switch ────────────────────────────────────────────────────────────

// StopSwitch is the shared process-wide pause flag. Unset by default;
// settable and clearable by a privileged operation.
type StopSwitch struct {
	flag atomic.Bool
}

// IsStopped implements domain.Stopper.
func (s *StopSwitch) IsStopped() bool { return s.flag.Load() }

// Stop sets the pause flag; mutating operations fail with ErrStopped.
func (s *StopSwitch) Stop() { s.flag.Store(true) }

// Resume clears the pause flag.
func (s *StopSwitch) Resume() { s.flag.Store(false) }
