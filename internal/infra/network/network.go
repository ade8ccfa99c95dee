// Package network provides in-process implementations of the collaborator
// interfaces the expenditure core consumes: the domain/skill tree, the
// authority registry, and the token backend. The daemon wires these at boot;
// tests use them as controllable fakes.
package network

import (
	"fmt"
	"sync"

	"github.com/escrowd-network/escrowd/internal/domain"
)

// ─── Skill Tree ─────────────────────────────────────────────────────────────

type skill struct {
	global     bool
	deprecated bool
	children   []uint64 // child skill ids, addressed by index
}

// StaticTree is an externally-owned domain/skill tree with lookup-by-index
// child resolution. Mutation happens at registration time; lookups are pure.
type StaticTree struct {
	mu      sync.RWMutex
	domains map[uint64]domain.DomainInfo
	skills  map[uint64]*skill
}

// NewStaticTree returns an empty tree.
func NewStaticTree() *StaticTree {
	return &StaticTree{
		domains: make(map[uint64]domain.DomainInfo),
		skills:  make(map[uint64]*skill),
	}
}

// AddSkill registers a skill node.
func (t *StaticTree) AddSkill(skillID uint64, global bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.skills[skillID]; !ok {
		t.skills[skillID] = &skill{global: global}
	}
}

// AddChildSkill appends childID to parentID's child list. The child's index
// is its position in registration order.
func (t *StaticTree) AddChildSkill(parentID, childID uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	parent, ok := t.skills[parentID]
	if !ok {
		return fmt.Errorf("parent skill %d not registered", parentID)
	}
	parent.children = append(parent.children, childID)
	return nil
}

// DeprecateSkill marks a skill deprecated; it no longer accepts awards.
func (t *StaticTree) DeprecateSkill(skillID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.skills[skillID]; ok {
		s.deprecated = true
	}
}

// AddDomain binds a domain to its skill and funding pot.
func (t *StaticTree) AddDomain(domainID, skillID, fundingPotID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.domains[domainID] = domain.DomainInfo{SkillID: skillID, FundingPotID: fundingPotID}
}

// Domain implements domain.SkillTree.
func (t *StaticTree) Domain(domainID uint64) (domain.DomainInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.domains[domainID]
	return info, ok
}

// ChildSkillID implements domain.SkillTree.
func (t *StaticTree) ChildSkillID(parentSkillID, childIndex uint64) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	parent, ok := t.skills[parentSkillID]
	if !ok || childIndex >= uint64(len(parent.children)) {
		return 0, false
	}
	return parent.children[childIndex], true
}

// SkillExists implements domain.SkillTree.
func (t *StaticTree) SkillExists(skillID uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.skills[skillID]
	return ok
}

// IsGlobalSkill implements domain.SkillTree.
func (t *StaticTree) IsGlobalSkill(skillID uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.skills[skillID]
	return ok && s.global
}

// IsDeprecatedSkill implements domain.SkillTree.
func (t *StaticTree) IsDeprecatedSkill(skillID uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.skills[skillID]
	return ok && s.deprecated
}

// ─── Authority Registry ─────────────────────────────────────────────────────

type grantKey struct {
	account  domain.Account
	domainID uint64
	op       domain.Operation
}

// GrantTable is an in-memory role registry: explicit (account, domain,
// operation) grants, no inheritance.
type GrantTable struct {
	mu     sync.RWMutex
	grants map[grantKey]bool
}

// NewGrantTable returns an empty registry.
func NewGrantTable() *GrantTable {
	return &GrantTable{grants: make(map[grantKey]bool)}
}

// Grant allows account to perform op in domainID.
func (g *GrantTable) Grant(account domain.Account, domainID uint64, op domain.Operation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grants[grantKey{account, domainID, op}] = true
}

// Revoke removes a grant.
func (g *GrantTable) Revoke(account domain.Account, domainID uint64, op domain.Operation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.grants, grantKey{account, domainID, op})
}

// CanAct implements domain.Authority.
func (g *GrantTable) CanAct(account domain.Account, domainID uint64, op domain.Operation) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.grants[grantKey{account, domainID, op}]
}

// ─── Token Backend ──────────────────────────────────────────────────────────

// Treasury is an in-memory token backend crediting account balances on
// claim settlement. It can be told to fail, which tests use to verify
// atomicity.
type Treasury struct {
	mu       sync.Mutex
	balances map[domain.Token]map[domain.Account]int64
	failNext error
}

// NewTreasury returns an empty treasury.
func NewTreasury() *Treasury {
	return &Treasury{balances: make(map[domain.Token]map[domain.Account]int64)}
}

// FailNext makes the next Settle return err.
func (t *Treasury) FailNext(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failNext = err
}

// Settle implements domain.TokenBackend. A configured failure is returned
// before either account is touched; otherwise both credits are applied
// under one lock acquisition, so no partial settlement is ever observable.
func (t *Treasury) Settle(token domain.Token, recipient domain.Account, net int64, collector domain.Account, fee int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failNext != nil {
		err := t.failNext
		t.failNext = nil
		return err
	}
	accounts, ok := t.balances[token]
	if !ok {
		accounts = make(map[domain.Account]int64)
		t.balances[token] = accounts
	}
	accounts[recipient] += net
	accounts[collector] += fee
	return nil
}

// Balance returns what an account has received in a token.
func (t *Treasury) Balance(token domain.Token, account domain.Account) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[token][account]
}
