package daemon

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/escrowd-network/escrowd/internal/api"
	"github.com/escrowd-network/escrowd/internal/domain"
	"github.com/escrowd-network/escrowd/internal/engine"
	"github.com/escrowd-network/escrowd/internal/infra/network"
	"github.com/escrowd-network/escrowd/internal/infra/observability"
	"github.com/escrowd-network/escrowd/internal/infra/replog"
	"github.com/escrowd-network/escrowd/internal/infra/sqlite"
)

// Daemon is one assembled escrowd process.
type Daemon struct {
	cfg  Config
	db   *sqlite.DB
	eng  *engine.Engine
	stop *engine.StopSwitch
	srv  *api.Server
}

// New builds the daemon: storage, collaborators, the engine restored from
// the database, and the network fabric declared in the config.
func New(cfg Config) (*Daemon, error) {
	dbPath := cfg.DatabasePath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, err
	}

	tree := network.NewStaticTree()
	auth := network.NewGrantTable()
	stop := &engine.StopSwitch{}
	eng := engine.New(engine.Config{
		RootDomainID: cfg.Network.RootDomainID,
		FeeCollector: domain.Account(cfg.Fees.Collector),
	}, engine.Deps{
		Authority:  auth,
		Tree:       tree,
		Tokens:     network.NewTreasury(),
		Reputation: replog.New(),
		Stopper:    stop,
	}, engine.WithPersister(db))

	pots, exps, err := db.LoadState()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("restore state: %w", err)
	}
	eng.Restore(pots, exps)
	log.Printf("escrowd: restored %d pots, %d expenditures from %s", len(pots), len(exps), dbPath)

	// Domain pots survive restarts; reuse the persisted pot for a domain
	// rather than allocating a fresh one.
	domainPots := make(map[uint64]uint64)
	for _, pot := range pots {
		if pot.Backs == domain.PotDomain {
			domainPots[pot.BacksID] = pot.ID
		}
	}

	if err := buildFabric(cfg.Network, tree, auth, eng, domainPots); err != nil {
		db.Close()
		return nil, err
	}

	srv := api.NewServer(eng, stop, auth, cfg.Network.RootDomainID)
	if cfg.API.Metrics {
		srv.EnableMetrics()
	}
	if cfg.Tracing.Enabled {
		srv.SetTracer(observability.NewTracer(cfg.Tracing.MaxSpans))
	}

	return &Daemon{cfg: cfg, db: db, eng: eng, stop: stop, srv: srv}, nil
}

// buildFabric registers the configured skills, domains, and grants.
func buildFabric(cfg NetworkConfig, tree *network.StaticTree, auth *network.GrantTable, eng *engine.Engine, domainPots map[uint64]uint64) error {
	for _, sk := range cfg.Skills {
		tree.AddSkill(sk.ID, sk.Global)
		if sk.ParentID != 0 {
			if err := tree.AddChildSkill(sk.ParentID, sk.ID); err != nil {
				return fmt.Errorf("skill %d: %w", sk.ID, err)
			}
		}
		if sk.Deprecated {
			tree.DeprecateSkill(sk.ID)
		}
	}
	for _, d := range cfg.Domains {
		potID, ok := domainPots[d.ID]
		if !ok {
			potID = eng.AllocateDomainPot(d.ID)
		}
		tree.AddDomain(d.ID, d.SkillID, potID)
	}
	for _, g := range cfg.Grants {
		for _, name := range g.Operations {
			op, err := parseOperation(name)
			if err != nil {
				return fmt.Errorf("grant for %s: %w", g.Account, err)
			}
			auth.Grant(domain.Account(g.Account), g.DomainID, op)
		}
	}
	return nil
}

// parseOperation maps a config string onto an authority operation.
func parseOperation(name string) (domain.Operation, error) {
	switch name {
	case "administration":
		return domain.OpAdministration, nil
	case "funding":
		return domain.OpFunding, nil
	case "arbitration":
		return domain.OpArbitration, nil
	default:
		return 0, fmt.Errorf("unknown operation %q", name)
	}
}

// Engine exposes the accounting core (used by tests and tooling).
func (d *Daemon) Engine() *engine.Engine { return d.eng }

// Run serves the HTTP API until the listener fails.
func (d *Daemon) Run() error {
	addr := d.cfg.API.Addr()
	log.Printf("escrowd: listening on %s", addr)
	return d.srv.ListenAndServe(addr)
}

// Close releases the database handle.
func (d *Daemon) Close() error { return d.db.Close() }
