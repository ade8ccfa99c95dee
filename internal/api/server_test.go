package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/escrowd-network/escrowd/internal/domain"
	"github.com/escrowd-network/escrowd/internal/engine"
	"github.com/escrowd-network/escrowd/internal/infra/network"
	"github.com/escrowd-network/escrowd/internal/infra/observability"
	"github.com/escrowd-network/escrowd/internal/infra/replog"
)

const (
	rootAdmin = "root-admin"
	arbiter   = "arbiter"
	worker    = "worker"
	outsider  = "outsider"

	rootSkill   = uint64(1)
	teamSkill   = uint64(2)
	codingSkill = uint64(100)
	rootDomain  = uint64(1)
	teamDomain  = uint64(2)
	tokenGold   = "GOLD"
)

// apiRig wires a live handler over an engine with a two-domain tree:
// root domain 1 with team domain 2 as child index 0.
type apiRig struct {
	handler  http.Handler
	treasury *network.Treasury
	stop     *engine.StopSwitch
	eng      *engine.Engine

	rootPot, teamPot uint64
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()
	tree := network.NewStaticTree()
	auth := network.NewGrantTable()
	r := &apiRig{
		treasury: network.NewTreasury(),
		stop:     &engine.StopSwitch{},
	}
	r.eng = engine.New(engine.DefaultConfig(), engine.Deps{
		Authority:  auth,
		Tree:       tree,
		Tokens:     r.treasury,
		Reputation: replog.New(),
		Stopper:    r.stop,
	})

	tree.AddSkill(rootSkill, false)
	tree.AddSkill(teamSkill, false)
	tree.AddChildSkill(rootSkill, teamSkill)
	tree.AddSkill(codingSkill, true)

	r.rootPot = r.eng.AllocateDomainPot(rootDomain)
	tree.AddDomain(rootDomain, rootSkill, r.rootPot)
	r.teamPot = r.eng.AllocateDomainPot(teamDomain)
	tree.AddDomain(teamDomain, teamSkill, r.teamPot)

	for _, op := range []domain.Operation{domain.OpAdministration, domain.OpFunding} {
		auth.Grant(rootAdmin, rootDomain, op)
		auth.Grant(rootAdmin, teamDomain, op)
	}
	auth.Grant(arbiter, rootDomain, domain.OpArbitration)

	srv := NewServer(r.eng, r.stop, auth, rootDomain)
	srv.SetTracer(observability.NewTracer(100))
	r.handler = srv.Handler()
	return r
}

// do sends one JSON request and decodes the JSON response body.
func (r *apiRig) do(t *testing.T, method, path, caller string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != "" {
		req.Header.Set(callerHeader, caller)
	}
	rec := httptest.NewRecorder()
	r.handler.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

func (r *apiRig) create(t *testing.T) uint64 {
	t.Helper()
	code, resp := r.do(t, "POST", "/v1/expenditures", rootAdmin, map[string]uint64{
		"permission_domain_id": rootDomain,
		"child_skill_index":    0,
		"domain_id":            teamDomain,
	})
	if code != http.StatusCreated {
		t.Fatalf("create status = %d, body %v", code, resp)
	}
	return uint64(resp["id"].(float64))
}

// ─── Lifecycle over HTTP ────────────────────────────────────────────────────

func TestCreateAndGetExpenditure(t *testing.T) {
	r := newAPIRig(t)

	id := r.create(t)
	code, resp := r.do(t, "GET", "/v1/expenditures/1", "", nil)
	if code != http.StatusOK {
		t.Fatalf("get status = %d", code)
	}
	if resp["status"] != "active" || resp["owner"] != rootAdmin {
		t.Errorf("expenditure = %v", resp)
	}
	if uint64(resp["id"].(float64)) != id {
		t.Errorf("id = %v, want %d", resp["id"], id)
	}
	if _, set := resp["finalized_at"]; set {
		t.Error("active expenditure has finalized_at")
	}
}

func TestCreateExpenditure_RequiresCallerHeader(t *testing.T) {
	r := newAPIRig(t)
	code, _ := r.do(t, "POST", "/v1/expenditures", "", map[string]uint64{"domain_id": rootDomain})
	if code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	r := newAPIRig(t)
	r.create(t)

	// Unknown id → 404.
	if code, _ := r.do(t, "GET", "/v1/expenditures/999", "", nil); code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", code)
	}
	// Unauthorized creator → 403.
	code, _ := r.do(t, "POST", "/v1/expenditures", outsider, map[string]uint64{
		"permission_domain_id": rootDomain, "domain_id": rootDomain,
	})
	if code != http.StatusForbidden {
		t.Errorf("outsider create status = %d, want 403", code)
	}
	// Non-owner cancel → 403.
	if code, _ := r.do(t, "POST", "/v1/expenditures/1/cancel", outsider, nil); code != http.StatusForbidden {
		t.Errorf("non-owner cancel status = %d, want 403", code)
	}
	// Claim before finalize → 409.
	code, _ = r.do(t, "POST", "/v1/expenditures/1/claims", worker, map[string]string{
		"recipient": worker, "token": tokenGold,
	})
	if code != http.StatusConflict {
		t.Errorf("early claim status = %d, want 409", code)
	}
	// Negative payout → 400.
	code, _ = r.do(t, "PUT", "/v1/expenditures/1/recipients/worker/payout", rootAdmin, map[string]interface{}{
		"token": tokenGold, "amount": -5,
	})
	if code != http.StatusBadRequest {
		t.Errorf("negative payout status = %d, want 400", code)
	}
}

func TestClaimLifecycleOverHTTP(t *testing.T) {
	r := newAPIRig(t)
	r.create(t)

	steps := []struct {
		method, path string
		body         interface{}
	}{
		{"POST", "/v1/pots/1/deposit", map[string]interface{}{"token": tokenGold, "amount": 500}},
		{"PUT", "/v1/expenditures/1/recipients/worker/payout", map[string]interface{}{"token": tokenGold, "amount": 100}},
		{"PUT", "/v1/expenditures/1/recipients/worker/skill", map[string]uint64{"skill_id": codingSkill}},
		{"POST", "/v1/pots/move", map[string]interface{}{
			"from_permission_domain_id": rootDomain,
			"from_child_skill_index":    0,
			"to_child_skill_index":      0,
			"from_pot_id":               1,
			"to_pot_id":                 3,
			"amount":                    100,
			"token":                     tokenGold,
		}},
		{"POST", "/v1/expenditures/1/finalize", nil},
	}
	for _, step := range steps {
		if code, resp := r.do(t, step.method, step.path, rootAdmin, step.body); code/100 != 2 {
			t.Fatalf("%s %s = %d, body %v", step.method, step.path, code, resp)
		}
	}

	code, resp := r.do(t, "POST", "/v1/expenditures/1/claims", worker, map[string]string{
		"recipient": worker, "token": tokenGold,
	})
	if code != http.StatusOK {
		t.Fatalf("claim status = %d, body %v", code, resp)
	}
	if resp["net"].(float64) != 99 || resp["fee"].(float64) != 1 {
		t.Errorf("split = %v, want net 99 fee 1", resp)
	}
	if got := r.treasury.Balance(tokenGold, worker); got != 99 {
		t.Errorf("worker balance = %d, want 99", got)
	}

	// Expenditure pot is pot 3 in this rig (root, team, then the new one).
	code, pot := r.do(t, "GET", "/v1/pots/3", "", nil)
	if code != http.StatusOK {
		t.Fatalf("get pot status = %d", code)
	}
	if pot["balances"].(map[string]interface{})[tokenGold].(float64) != 0 {
		t.Errorf("expenditure pot = %v, want drained", pot["balances"])
	}
}

func TestPayOverHTTP(t *testing.T) {
	r := newAPIRig(t)
	if code, _ := r.do(t, "POST", "/v1/pots/1/deposit", rootAdmin, map[string]interface{}{
		"token": tokenGold, "amount": 1000,
	}); code != http.StatusOK {
		t.Fatal("deposit failed")
	}

	code, resp := r.do(t, "POST", "/v1/pay", rootAdmin, map[string]interface{}{
		"permission_domain_id":        rootDomain,
		"child_skill_index":           0,
		"caller_permission_domain_id": rootDomain,
		"caller_child_skill_index":    0,
		"recipient":                   worker,
		"token":                       tokenGold,
		"amount":                      100,
		"domain_id":                   teamDomain,
		"skill_id":                    codingSkill,
	})
	if code != http.StatusOK {
		t.Fatalf("pay status = %d, body %v", code, resp)
	}
	split := resp["split"].(map[string]interface{})
	if split["net"].(float64) != 99 || split["fee"].(float64) != 1 {
		t.Errorf("split = %v, want net 99 fee 1", split)
	}
	if got := r.treasury.Balance(tokenGold, worker); got != 99 {
		t.Errorf("worker balance = %d, want 99", got)
	}
}

// ─── Admin ──────────────────────────────────────────────────────────────────

func TestPauseAndResume(t *testing.T) {
	r := newAPIRig(t)

	if code, _ := r.do(t, "POST", "/v1/admin/pause", outsider, nil); code != http.StatusForbidden {
		t.Errorf("outsider pause status = %d, want 403", code)
	}
	if code, _ := r.do(t, "POST", "/v1/admin/pause", arbiter, nil); code != http.StatusOK {
		t.Errorf("arbiter pause failed")
	}

	// Mutations are refused while stopped; reads still work.
	code, _ := r.do(t, "POST", "/v1/expenditures", rootAdmin, map[string]uint64{
		"permission_domain_id": rootDomain, "domain_id": rootDomain,
	})
	if code != http.StatusServiceUnavailable {
		t.Errorf("create while stopped = %d, want 503", code)
	}
	code, resp := r.do(t, "GET", "/v1/status", "", nil)
	if code != http.StatusOK || resp["stopped"] != true {
		t.Errorf("status = %d %v, want stopped true", code, resp)
	}

	if code, _ := r.do(t, "POST", "/v1/admin/resume", arbiter, nil); code != http.StatusOK {
		t.Errorf("resume failed")
	}
	if r.stop.IsStopped() {
		t.Error("still stopped after resume")
	}
}

func TestTracesEndpoint(t *testing.T) {
	r := newAPIRig(t)
	r.create(t)

	req := httptest.NewRequest("GET", "/v1/admin/traces", nil)
	rec := httptest.NewRecorder()
	r.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("traces status = %d", rec.Code)
	}
	var spans []observability.Span
	if err := json.Unmarshal(rec.Body.Bytes(), &spans); err != nil {
		t.Fatalf("decode spans: %v", err)
	}
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}
	if spans[0].Operation != "create_expenditure" {
		t.Errorf("operation = %q, want create_expenditure", spans[0].Operation)
	}
}

func TestHealth(t *testing.T) {
	r := newAPIRig(t)
	code, resp := r.do(t, "GET", "/health", "", nil)
	if code != http.StatusOK || resp["status"] != "ok" {
		t.Errorf("health = %d %v", code, resp)
	}
}
