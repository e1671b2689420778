package gametick

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/huntmesh/huntmesh/internal/domain"
	"github.com/huntmesh/huntmesh/internal/meshregistry"
)

type fakeSender struct {
	broadcasts []domain.Snapshot
}

func (f *fakeSender) Send(msg domain.OutMsg) {}
func (f *fakeSender) SendAll(class domain.MsgClass, payload any, exclude domain.NodeID) {
	if snap, ok := payload.(domain.Snapshot); ok {
		f.broadcasts = append(f.broadcasts, snap)
	}
}

func newEngine() (*Engine, *fakeSender) {
	self := domain.NewNodeID()
	reg := meshregistry.New(self)
	sender := &fakeSender{}
	serverIn := make(chan domain.InMsg)
	maintIn := make(chan string)
	e := New(DefaultConfig(), reg, sender, self, serverIn, maintIn)
	return e, sender
}

// newEngineWithPeer is for tests that call tick(), which reconciles
// e.state.Players against the registry every cycle (spec §4.5 step 1) — a
// player row only survives a tick if its id is a peer the registry knows
// about, so these tests need a real registered NodeID rather than a bare
// literal like "p1".
func newEngineWithPeer() (e *Engine, sender *fakeSender, playerID string) {
	self := domain.NewNodeID()
	reg := meshregistry.New(self)
	peer := domain.NewNodeID()
	reg.Upsert(peer, "10.0.0.2:43234")
	sender = &fakeSender{}
	serverIn := make(chan domain.InMsg)
	maintIn := make(chan string)
	e = New(DefaultConfig(), reg, sender, self, serverIn, maintIn)
	return e, sender, peer.String()
}

func TestEnsurePlayerIdempotent(t *testing.T) {
	e, _ := newEngine()
	e.EnsurePlayer("p1")
	e.EnsurePlayer("p1")
	if len(e.Snapshot().Players) != 1 {
		t.Errorf("expected exactly one player row")
	}
}

func TestApplyMoveUpdatesDirectionOnly(t *testing.T) {
	e, _ := newEngine()
	e.EnsurePlayer("p1")

	e.applyMove(domain.MoveCommand{Move: domain.DirRight, PlayerID: "p1"})

	p := e.Snapshot().Players["p1"]
	if p.LastDirection != domain.DirRight {
		t.Errorf("LastDirection = %v, want right", p.LastDirection)
	}
	if p.Position != (domain.Position{}) {
		t.Errorf("position should not move until tick, got %v", p.Position)
	}
}

func TestApplyMoveUnknownPlayerIgnored(t *testing.T) {
	e, _ := newEngine()
	e.applyMove(domain.MoveCommand{Move: domain.DirUp, PlayerID: "ghost"})
	if len(e.Snapshot().Players) != 0 {
		t.Error("unknown player move should not create a row")
	}
}

func TestTickMovesPlayerRight(t *testing.T) {
	e, sender, p1 := newEngineWithPeer()
	e.EnsurePlayer(p1)
	e.applyMove(domain.MoveCommand{Move: domain.DirRight, PlayerID: p1})

	e.tick()

	p := e.Snapshot().Players[p1]
	if p.Position.X != Increment {
		t.Errorf("X = %d, want %d", p.Position.X, Increment)
	}
	if len(sender.broadcasts) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(sender.broadcasts))
	}
	if sender.broadcasts[0].Clock == nil || *sender.broadcasts[0].Clock != 1 {
		t.Errorf("clock = %v, want 1", sender.broadcasts[0].Clock)
	}
}

func TestTickRespectsBounds(t *testing.T) {
	e, _, p1 := newEngineWithPeer()
	e.EnsurePlayer(p1)
	e.mu.Lock()
	p := e.state.Players[p1]
	p.Position = domain.Position{X: XMin, Y: YMin}
	p.LastDirection = domain.DirLeft
	e.state.Players[p1] = p
	e.mu.Unlock()

	e.tick()

	got := e.Snapshot().Players[p1].Position
	if got.X != XMin {
		t.Errorf("X = %d, want to stay at XMin %d", got.X, XMin)
	}
}

func TestTickSyncsJoinersAndDropsLeavers(t *testing.T) {
	e, _, p1 := newEngineWithPeer()

	e.tick()

	snap := e.Snapshot()
	if _, ok := snap.Players[p1]; !ok {
		t.Fatalf("expected tick to add a player row for registered peer %s", p1)
	}
	if _, ok := snap.Players[e.selfID.String()]; !ok {
		t.Error("expected tick to add a player row for self too")
	}

	e.reg.Remove(mustParseNodeID(t, p1))
	e.tick()

	if _, ok := e.Snapshot().Players[p1]; ok {
		t.Error("expected tick to drop the player row once its peer left the registry")
	}
}

func mustParseNodeID(t *testing.T, s string) domain.NodeID {
	t.Helper()
	id, err := domain.ParseNodeID(s)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestTickSpawnsGatherablesUpToLimit(t *testing.T) {
	e, _ := newEngine()
	e.tick()
	if len(e.Snapshot().Gatherables) != GatherableLimit {
		t.Errorf("gatherables = %d, want %d", len(e.Snapshot().Gatherables), GatherableLimit)
	}
}

func TestCollisionAwardsPointAndRemovesGatherable(t *testing.T) {
	e, _ := newEngine()
	e.EnsurePlayer("p1")
	e.mu.Lock()
	e.state.Gatherables["1"] = domain.Position{X: 0, Y: 0}
	e.mu.Unlock()

	e.checkCollisions()

	snap := e.Snapshot()
	if snap.Players["p1"].Points != 1 {
		t.Errorf("points = %d, want 1", snap.Players["p1"].Points)
	}
	if _, ok := snap.Gatherables["1"]; ok {
		t.Error("collided gatherable should be removed")
	}
	if snap.Scoreboard["p1"].Points != 1 {
		t.Errorf("scoreboard points = %d, want 1", snap.Scoreboard["p1"].Points)
	}
}

func TestRoundResetOnPointLimit(t *testing.T) {
	e, _ := newEngine()
	e.EnsurePlayer("p1")
	e.EnsurePlayer("p2")
	e.mu.Lock()
	p1 := e.state.Players["p1"]
	p1.Points = PointLimit - 1
	e.state.Players["p1"] = p1
	p2 := e.state.Players["p2"]
	p2.Points = 3
	p2.Position = domain.Position{X: 100, Y: 100}
	e.state.Players["p2"] = p2
	e.state.Gatherables["1"] = domain.Position{}
	e.mu.Unlock()

	e.checkCollisions()

	snap := e.Snapshot()
	if snap.Players["p1"].Points != 0 {
		t.Errorf("winner points should reset to 0, got %d", snap.Players["p1"].Points)
	}
	if snap.Players["p1"].GamesWon != 1 {
		t.Errorf("winner games_won = %d, want 1", snap.Players["p1"].GamesWon)
	}
	if snap.Players["p2"].Points != 0 {
		t.Errorf("other player's points should also reset, got %d", snap.Players["p2"].Points)
	}
}

func TestHandoverAdoptsHigherClock(t *testing.T) {
	self := domain.NewNodeID()
	reg := meshregistry.New(self)
	sender := &fakeSender{}
	serverIn := make(chan domain.InMsg, 1)
	maintIn := make(chan string)
	cfg := DefaultConfig()
	cfg.SyncWait = 50 * time.Millisecond
	e := New(cfg, reg, sender, self, serverIn, maintIn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		e.handover(ctx)
		close(done)
	}()

	reply := domain.SyncReply{
		SyncGamestate: 42,
		Players:       map[string]domain.Player{"p1": {Points: 2}},
	}
	b, _ := json.Marshal(reply)
	serverIn <- domain.InMsg{PeerID: domain.NewNodeID(), Payload: b}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handover did not return in time")
	}

	snap := e.Snapshot()
	if snap.Clock != 42 {
		t.Errorf("Clock = %d, want 42", snap.Clock)
	}
	if snap.Players["p1"].Points != 2 {
		t.Errorf("Players[p1].Points = %d, want 2", snap.Players["p1"].Points)
	}
}
