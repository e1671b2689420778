package daemon

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/huntmesh/huntmesh/internal/api"
	"github.com/huntmesh/huntmesh/internal/client"
	"github.com/huntmesh/huntmesh/internal/discovery"
	"github.com/huntmesh/huntmesh/internal/domain"
	"github.com/huntmesh/huntmesh/internal/election"
	"github.com/huntmesh/huntmesh/internal/gametick"
	"github.com/huntmesh/huntmesh/internal/mesh"
	"github.com/huntmesh/huntmesh/internal/meshregistry"
	"github.com/huntmesh/huntmesh/internal/nodestore"
	"github.com/huntmesh/huntmesh/internal/observability"
)

// Node is the single process-wide coordinator object: it owns the
// registry, the peer fabric, discovery, election, the game tick engine,
// the client reducer, and the HTTP API, and wires them to each other
// (spec §9).
type Node struct {
	cfg    Config
	selfID domain.NodeID

	store    *nodestore.Store
	reg      *meshregistry.Registry
	fabric   *mesh.Fabric
	disc     *discovery.Discovery
	election *election.Election
	tick     *gametick.Engine
	client   *client.Client
	apiSrv   *api.Server
}

// New constructs a Node, persisting/loading its identity and wiring every
// collaborator. It does not start any background work — call Run for that.
func New(cfg Config) (*Node, error) {
	store, err := nodestore.Open(filepath.Join(cfg.Node.DataDir, "node.db"))
	if err != nil {
		return nil, fmt.Errorf("open node store: %w", err)
	}

	selfID, err := store.LoadOrCreateNodeID()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load node id: %w", err)
	}

	reg := meshregistry.New(selfID)
	fabric := mesh.New(mesh.Config{
		GameID:   cfg.Node.GameID,
		PeerPort: cfg.Node.PeerPort,
		BindAddr: cfg.Node.BindAddr,
	}, reg, selfID)

	tickEngine := gametick.New(gametick.Config{
		TickRate: time.Second / time.Duration(cfg.Tick.RateHz),
		SyncWait: time.Duration(cfg.Tick.SyncWaitMillis) * time.Millisecond,
	}, reg, fabric, selfID, fabric.ServerIn, fabric.MaintenanceIn)

	clientEngine := client.New(reg, fabric, selfID, fabric.ClientIn, selfID.String(), func(players map[string]domain.Player, gatherables map[string]domain.Position) {
		observability.PeerCount.Set(float64(reg.Count()))
	})

	electionEngine := election.New(election.Config{
		WarmUp:       time.Duration(cfg.Election.WarmUpSeconds) * time.Second,
		OKTimeout:    time.Duration(cfg.Election.OKTimeoutSeconds) * time.Second,
		CoordTimeout: time.Duration(cfg.Election.CoordTimeoutSeconds) * time.Second,
	}, reg, fabric, selfID, fabric.ElectionIn, func() {
		observability.IsLeader.Set(1)
		observability.LeaderPromotions.Inc()
		select {
		case fabric.MaintenanceIn <- domain.SyncGamestate:
		default:
		}
	})

	disc := discovery.New(discovery.DefaultConfig(cfg.Node.GameID), selfID, reg.Contains, reg.Touch, func(peerID domain.NodeID, ip string) {
		ctx := context.Background()
		fabric.ConnectToPeer(ctx, peerID, ip)
	})

	n := &Node{
		cfg:      cfg,
		selfID:   selfID,
		store:    store,
		reg:      reg,
		fabric:   fabric,
		disc:     disc,
		election: electionEngine,
		tick:     tickEngine,
		client:   clientEngine,
	}
	n.apiSrv = api.NewServer(reg, dualState{reg: reg, tick: tickEngine, client: clientEngine})
	if cfg.API.MetricsEnabled {
		n.apiSrv.EnableMetrics()
	}
	return n, nil
}

// SelfID returns this node's own identity.
func (n *Node) SelfID() domain.NodeID { return n.selfID }

// Registry exposes the peer registry, mainly for CLI introspection.
func (n *Node) Registry() *meshregistry.Registry { return n.reg }

// InjectMove routes local input to the current leader.
func (n *Node) InjectMove(dir domain.Direction) error {
	return n.client.InjectMove(dir)
}

// Run starts every subsystem and blocks until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	defer n.store.Close()

	if err := n.fabric.Start(ctx); err != nil {
		return fmt.Errorf("start fabric: %w", err)
	}
	if err := n.disc.Start(ctx); err != nil {
		return fmt.Errorf("start discovery: %w", err)
	}

	go n.election.Run(ctx)
	go n.tick.Run(ctx)
	go n.client.Run(ctx)
	go n.sweepStalePeers(ctx)

	addr := fmt.Sprintf("%s:%d", n.cfg.API.Host, n.cfg.API.Port)
	srv := &httpServerRunner{addr: addr, handler: n.apiSrv.Handler()}
	go srv.run(ctx)

	log.Printf("[daemon] node %s listening peers=%d:%d api=%s", n.selfID, n.cfg.Node.PeerPort, n.cfg.Node.PeerPort, addr)

	<-ctx.Done()
	return nil
}

func (n *Node) sweepStalePeers(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := n.reg.SweepStale(90 * time.Second)
			for _, id := range removed {
				log.Printf("[daemon] reaped stale peer %s", id)
				observability.PeersEvicted.WithLabelValues("stale").Inc()
			}
			observability.PeerCount.Set(float64(n.reg.Count()))
		}
	}
}

// dualState picks the right state source depending on whether this node
// currently holds the leader slot (spec §4.6/§4.7: a node is either
// authoritative or a reducer of someone else's broadcasts, never both).
type dualState struct {
	reg    *meshregistry.Registry
	tick   *gametick.Engine
	client *client.Client
}

func (d dualState) State() (uint64, map[string]domain.Player, map[string]domain.Position) {
	if d.reg.IsLeader() {
		return d.tick.State()
	}
	return d.client.State()
}
