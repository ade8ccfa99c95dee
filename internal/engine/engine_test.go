package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/escrowd-network/escrowd/internal/domain"
	"github.com/escrowd-network/escrowd/internal/infra/network"
	"github.com/escrowd-network/escrowd/internal/infra/replog"
)

// ─── Fixtures ───────────────────────────────────────────────────────────────

// Accounts used across the engine tests.
const (
	rootAdmin = domain.Account("root-admin")
	teamLead  = domain.Account("team-lead")
	arbiter   = domain.Account("arbiter")
	worker    = domain.Account("worker")
	outsider  = domain.Account("outsider")
	collector = domain.Account("fee-collector")
)

// Skill ids: 1–3 are domain skills, 100+ are global skills.
const (
	rootSkill       = uint64(1)
	teamSkill       = uint64(2)
	sideSkill       = uint64(3)
	codingSkill     = uint64(100)
	legacySkill     = uint64(101) // deprecated
	localOnlySkill  = uint64(102) // not global
	rootDomain      = uint64(1)
	teamDomain      = uint64(2)
	sideDomain      = uint64(3)
	missingDomain   = uint64(99)
	tokenGold       = domain.Token("GOLD")
)

// testClock is a settable clock shared with the engine under test.
type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// rig wires an engine with in-memory collaborators and a three-domain tree:
// root domain 1, with domains 2 and 3 as children at indexes 0 and 1.
type rig struct {
	clock    *testClock
	tree     *network.StaticTree
	auth     *network.GrantTable
	treasury *network.Treasury
	rep      *replog.Log
	stop     *StopSwitch
	eng      *Engine

	rootPot, teamPot, sidePot uint64
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		clock:    newTestClock(),
		tree:     network.NewStaticTree(),
		auth:     network.NewGrantTable(),
		treasury: network.NewTreasury(),
		rep:      replog.New(),
		stop:     &StopSwitch{},
	}
	r.eng = New(DefaultConfig(), Deps{
		Authority:  r.auth,
		Tree:       r.tree,
		Tokens:     r.treasury,
		Reputation: r.rep,
		Stopper:    r.stop,
	}, WithClock(r.clock.Now))

	// Skill tree: domain skills 1→{2,3}, plus global and local skills.
	r.tree.AddSkill(rootSkill, false)
	r.tree.AddSkill(teamSkill, false)
	r.tree.AddSkill(sideSkill, false)
	r.tree.AddChildSkill(rootSkill, teamSkill)
	r.tree.AddChildSkill(rootSkill, sideSkill)
	r.tree.AddSkill(codingSkill, true)
	r.tree.AddSkill(legacySkill, true)
	r.tree.DeprecateSkill(legacySkill)
	r.tree.AddSkill(localOnlySkill, false)

	// Domain pots come from the engine; the tree maps domains to them.
	r.rootPot = r.eng.AllocateDomainPot(rootDomain)
	r.teamPot = r.eng.AllocateDomainPot(teamDomain)
	r.sidePot = r.eng.AllocateDomainPot(sideDomain)
	r.tree.AddDomain(rootDomain, rootSkill, r.rootPot)
	r.tree.AddDomain(teamDomain, teamSkill, r.teamPot)
	r.tree.AddDomain(sideDomain, sideSkill, r.sidePot)

	// Grants: rootAdmin runs the root domain, teamLead runs domain 2,
	// arbiter arbitrates from the root.
	for _, op := range []domain.Operation{domain.OpAdministration, domain.OpFunding, domain.OpArbitration} {
		r.auth.Grant(rootAdmin, rootDomain, op)
	}
	r.auth.Grant(teamLead, teamDomain, domain.OpAdministration)
	r.auth.Grant(teamLead, teamDomain, domain.OpFunding)
	r.auth.Grant(arbiter, rootDomain, domain.OpArbitration)
	return r
}

// fundedExpenditure creates an expenditure in teamDomain owned by teamLead,
// with a payout of amount GOLD to worker, and its pot fully funded.
func (r *rig) fundedExpenditure(t *testing.T, amount int64) uint64 {
	t.Helper()
	id, err := r.eng.CreateExpenditure(teamLead, teamDomain, 0, teamDomain)
	if err != nil {
		t.Fatalf("CreateExpenditure() error: %v", err)
	}
	if err := r.eng.SetRecipientPayout(teamLead, id, worker, tokenGold, amount); err != nil {
		t.Fatalf("SetRecipientPayout() error: %v", err)
	}
	exp, err := r.eng.Get(id)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if err := r.eng.Deposit(teamLead, r.teamPot, tokenGold, amount); err != nil {
		t.Fatalf("Deposit() error: %v", err)
	}
	if err := r.eng.MovePotFunds(teamLead, teamDomain, 0, 0, r.teamPot, exp.FundingPotID, amount, tokenGold); err != nil {
		t.Fatalf("MovePotFunds() error: %v", err)
	}
	return id
}

func mustErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("error = %v, want %v", err, want)
	}
}

// ─── Identity & Reads ───────────────────────────────────────────────────────

func TestIDsAreMonotonicFromOne(t *testing.T) {
	r := newRig(t)

	first, err := r.eng.CreateExpenditure(rootAdmin, rootDomain, 0, rootDomain)
	if err != nil {
		t.Fatalf("CreateExpenditure() error: %v", err)
	}
	second, _ := r.eng.CreateExpenditure(rootAdmin, rootDomain, 0, rootDomain)
	if first != 1 || second != 2 {
		t.Errorf("ids = %d, %d, want 1, 2", first, second)
	}
	if got := r.eng.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
}

func TestGet_UnknownAndZeroID(t *testing.T) {
	r := newRig(t)
	if _, err := r.eng.Get(0); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get(0) error = %v, want ErrNotFound", err)
	}
	if _, err := r.eng.Get(42); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get(42) error = %v, want ErrNotFound", err)
	}
}

func TestGetRecipient_DefaultsForUntouchedSlot(t *testing.T) {
	r := newRig(t)
	id, _ := r.eng.CreateExpenditure(rootAdmin, rootDomain, 0, rootDomain)

	slot, err := r.eng.GetRecipient(id, worker)
	if err != nil {
		t.Fatalf("GetRecipient() error: %v", err)
	}
	if !slot.PayoutScalar.IsPositive() || slot.PayoutScalar.String() != "1" {
		t.Errorf("PayoutScalar = %s, want 1", slot.PayoutScalar)
	}
	if slot.ClaimDelay != 0 || slot.SkillID != 0 {
		t.Errorf("slot = %+v, want zero delay and no skill", slot)
	}
}

// ─── Stop Switch ────────────────────────────────────────────────────────────

func TestStopSwitch_RejectsAllMutators(t *testing.T) {
	r := newRig(t)
	id := r.fundedExpenditure(t, 100)

	r.stop.Stop()
	defer r.stop.Resume()

	if _, err := r.eng.CreateExpenditure(rootAdmin, rootDomain, 0, rootDomain); !errors.Is(err, domain.ErrStopped) {
		t.Errorf("CreateExpenditure error = %v, want ErrStopped", err)
	}
	mustErr(t, r.eng.TransferOwner(teamLead, id, worker), domain.ErrStopped)
	mustErr(t, r.eng.Cancel(teamLead, id), domain.ErrStopped)
	mustErr(t, r.eng.Finalize(teamLead, id), domain.ErrStopped)
	mustErr(t, r.eng.SetRecipientPayout(teamLead, id, worker, tokenGold, 1), domain.ErrStopped)
	mustErr(t, r.eng.Deposit(teamLead, r.teamPot, tokenGold, 1), domain.ErrStopped)
	mustErr(t, r.eng.MovePotFunds(teamLead, teamDomain, 0, 0, r.teamPot, r.teamPot, 0, tokenGold), domain.ErrStopped)
	if _, err := r.eng.Claim(id, worker, tokenGold); !errors.Is(err, domain.ErrStopped) {
		t.Errorf("Claim error = %v, want ErrStopped", err)
	}

	// Reads stay available while stopped.
	if _, err := r.eng.Get(id); err != nil {
		t.Errorf("Get() while stopped: %v", err)
	}
}

func TestStopSwitch_ResumeRestoresService(t *testing.T) {
	r := newRig(t)
	r.stop.Stop()
	r.stop.Resume()
	if _, err := r.eng.CreateExpenditure(rootAdmin, rootDomain, 0, rootDomain); err != nil {
		t.Fatalf("CreateExpenditure after resume: %v", err)
	}
}
