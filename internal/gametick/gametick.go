// Package gametick implements the leader-only authoritative game loop
// (spec §4.6): movement, gatherable spawning, collision/scoring, and the
// clock-driven state handover. It is grounded on the original server.py's
// update_positions/spawn_gatherable/gatherable_kill_check/kill_gatherable/
// round_reset functions, restyled into a ticker-driven Run(ctx) task like
// the teacher's internal/infra/gossip.SWIM probe loop.
package gametick

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/huntmesh/huntmesh/internal/domain"
	"github.com/huntmesh/huntmesh/internal/meshregistry"
	"github.com/huntmesh/huntmesh/internal/observability"
)

// Bounds are the movement grid limits, taken verbatim from the original
// pygame client's 600x400 canvas (server.py's X_MIN/X_MAX/Y_MIN/Y_MAX).
const (
	XMin = 0
	XMax = 580
	YMin = 0
	YMax = 380

	Increment       = 10
	GatherableLimit = 3
	PointLimit      = 5
	maxSpawnTries   = 1000
)

// Config controls tick cadence and the handover sync window.
type Config struct {
	TickRate  time.Duration // 5Hz per server.py's time.sleep(1/5)
	SyncWait  time.Duration // how long a freshly-promoted leader waits for SyncReply
}

// DefaultConfig returns the original's 5Hz cadence and the spec's
// mandated 3s handover grace period (spec §4.6 step 2, §5).
func DefaultConfig() Config {
	return Config{TickRate: 200 * time.Millisecond, SyncWait: 3 * time.Second}
}

// Engine owns the authoritative GameState while this node is leader.
type Engine struct {
	cfg    Config
	reg    *meshregistry.Registry
	sender domain.Sender
	selfID domain.NodeID

	serverIn      <-chan domain.InMsg
	maintenanceIn <-chan string

	mu                sync.RWMutex
	state             *domain.GameState
	gatherableCounter int
	newPlayerJoined   bool
}

// New creates a game-tick engine. serverIn is normally Fabric.ServerIn
// (class-s moves and sync replies); maintenanceIn is fed by the election
// engine's OnLeaderFn.
func New(cfg Config, reg *meshregistry.Registry, sender domain.Sender, selfID domain.NodeID, serverIn <-chan domain.InMsg, maintenanceIn <-chan string) *Engine {
	return &Engine{
		cfg:           cfg,
		reg:           reg,
		sender:        sender,
		selfID:        selfID,
		serverIn:      serverIn,
		maintenanceIn: maintenanceIn,
		state:         domain.NewGameState(),
	}
}

// Snapshot returns a deep copy of the current authoritative state, safe to
// read from the API/observability layers without synchronizing with tick.
func (e *Engine) Snapshot() *domain.GameState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// State implements api.StateView.
func (e *Engine) State() (clock uint64, players map[string]domain.Player, gatherables map[string]domain.Position) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clock, clonePlayers(e.state.Players), clonePositions(e.state.Gatherables)
}

// EnsurePlayer adds a fresh player row if id isn't known yet, restoring any
// prior score from the scoreboard. tick() applies the same rule to every
// registered peer each cycle via syncPlayersLocked (spec §4.5 step 1).
func (e *Engine) EnsurePlayer(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensurePlayerLocked(id)
}

func (e *Engine) ensurePlayerLocked(id string) {
	if _, ok := e.state.Players[id]; ok {
		return
	}
	score := e.state.Scoreboard[id]
	e.state.Players[id] = domain.Player{Points: score.Points, GamesWon: score.GamesWon}
	e.newPlayerJoined = true
}

// RemovePlayer drops a player row entirely. tick() drops the rows of peers
// that have left the registry on its own, via syncPlayersLocked.
func (e *Engine) RemovePlayer(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.state.Players[id]; !ok {
		return
	}
	delete(e.state.Players, id)
	e.newPlayerJoined = true
}

// syncPlayersLocked reconciles e.state.Players against the current peer
// registry (spec §4.5 step 1): every registered peer (including self, which
// plays too) gets a player row if it lacks one, and any row for a peer no
// longer registered is dropped. Must be called with e.mu held.
func (e *Engine) syncPlayersLocked() {
	live := make(map[string]bool, len(e.state.Players))
	for _, p := range e.reg.Snapshot() {
		id := p.NodeID.String()
		live[id] = true
		e.ensurePlayerLocked(id)
	}
	for id := range e.state.Players {
		if !live[id] {
			delete(e.state.Players, id)
			e.newPlayerJoined = true
		}
	}
}

// Run drives the tick loop until ctx is cancelled. Every node runs it, but
// a tick only advances state while this node holds the leader slot; a
// non-leader discards queued server-bound messages instead, so the
// authoritative tick runs exactly once per cluster (spec §4.5).
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case reason, ok := <-e.maintenanceIn:
			if !ok {
				return
			}
			if reason == domain.SyncGamestate {
				e.handover(ctx)
			}
		case msg, ok := <-e.serverIn:
			if !ok {
				return
			}
			if e.reg.IsLeader() {
				e.handleServerMsg(msg)
			}
		case <-ticker.C:
			if e.reg.IsLeader() {
				e.tick()
			}
		}
	}
}

func (e *Engine) handleServerMsg(msg domain.InMsg) {
	var cmd domain.MoveCommand
	if err := json.Unmarshal(msg.Payload, &cmd); err == nil && cmd.Move != "" {
		e.applyMove(cmd)
		return
	}
	// Not a move — ignore here; sync replies are only consumed during
	// handover's dedicated receive window.
}

func (e *Engine) applyMove(cmd domain.MoveCommand) {
	if !domain.ValidDirection(cmd.Move) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.state.Players[cmd.PlayerID]
	if !ok {
		return
	}
	p.LastDirection = cmd.Move
	e.state.Players[cmd.PlayerID] = p
}

// tick advances positions, spawns/collides gatherables, and broadcasts the
// updated state (server.py's update_positions, run once per TickRate).
func (e *Engine) tick() {
	e.mu.Lock()

	e.syncPlayersLocked()

	for id, p := range e.state.Players {
		p.Position = move(p.Position, p.LastDirection)
		e.state.Players[id] = p
	}

	gatherableChanged := false
	for len(e.state.Gatherables) < GatherableLimit {
		pos := e.spawnGatherable()
		e.gatherableCounter++
		id := domain.ItoaGatherableID(e.gatherableCounter)
		e.state.Gatherables[id] = pos
		gatherableChanged = true
	}

	e.checkCollisions()

	e.state.Clock++
	clock := e.state.Clock
	playersCopy := clonePlayers(e.state.Players)

	var gatherablesCopy map[string]domain.Position
	if gatherableChanged || e.newPlayerJoined {
		gatherablesCopy = clonePositions(e.state.Gatherables)
	}
	e.newPlayerJoined = false

	e.mu.Unlock()

	snap := domain.Snapshot{
		Clock:       &clock,
		Players:     playersCopy,
		Gatherables: gatherablesCopy,
	}

	observability.TickClock.Set(float64(clock))
	if b, err := json.Marshal(snap); err == nil {
		observability.SnapshotBytesSent.WithLabelValues("tick").Add(float64(len(b)))
	}

	e.sender.SendAll(domain.ClassServerClient, snap, domain.NodeID{})
}

// spawnGatherable must be called with e.mu held. Mirrors
// server.py's spawn_gatherable/player_pos_check: up to maxSpawnTries
// attempts to avoid landing on an occupied cell, else accepts the
// collision.
func (e *Engine) spawnGatherable() domain.Position {
	for tries := 0; tries < maxSpawnTries; tries++ {
		pos := domain.Position{
			X: (XMin/Increment + rand.Intn(XMax/Increment-XMin/Increment+1)) * Increment,
			Y: (YMin/Increment + rand.Intn(YMax/Increment-YMin/Increment+1)) * Increment,
		}
		if !e.occupiedByPlayer(pos) {
			return pos
		}
	}
	return domain.Position{X: XMin, Y: YMin}
}

func (e *Engine) occupiedByPlayer(pos domain.Position) bool {
	for _, p := range e.state.Players {
		if p.Position == pos {
			return true
		}
	}
	return false
}

// checkCollisions must be called with e.mu held. Mirrors
// gatherable_kill_check/kill_gatherable/round_reset: awards a point per
// collision, resets the whole scoreboard's points when a player reaches
// PointLimit (spec §4.6 "win-reset sequence").
func (e *Engine) checkCollisions() {
	for playerID, p := range e.state.Players {
		for gatherID, gpos := range e.state.Gatherables {
			if p.Position != gpos {
				continue
			}
			delete(e.state.Gatherables, gatherID)
			p.Points++
			e.state.Players[playerID] = p
			score := e.state.Scoreboard[playerID]
			score.Points = p.Points
			e.state.Scoreboard[playerID] = score

			if p.Points >= PointLimit {
				e.roundReset(playerID)
				p = e.state.Players[playerID]
			}
		}
	}
}

func (e *Engine) roundReset(winnerID string) {
	winner := e.state.Players[winnerID]
	winner.GamesWon++
	e.state.Players[winnerID] = winner
	score := e.state.Scoreboard[winnerID]
	score.GamesWon = winner.GamesWon
	e.state.Scoreboard[winnerID] = score

	log.Printf("[gametick] player %s wins the round", winnerID)

	for id, p := range e.state.Players {
		p.Points = 0
		e.state.Players[id] = p
		s := e.state.Scoreboard[id]
		s.Points = 0
		e.state.Scoreboard[id] = s
	}
}

func move(pos domain.Position, dir domain.Direction) domain.Position {
	switch dir {
	case domain.DirUp:
		if pos.Y-Increment >= YMin {
			pos.Y -= Increment
		}
	case domain.DirDown:
		if pos.Y+Increment <= YMax {
			pos.Y += Increment
		}
	case domain.DirLeft:
		if pos.X-Increment >= XMin {
			pos.X -= Increment
		}
	case domain.DirRight:
		if pos.X+Increment <= XMax {
			pos.X += Increment
		}
	}
	return pos
}

// handover implements the clock-reconciliation handoff (spec §4.6): a
// freshly-promoted leader asks every peer for its last-known clock and
// adopts whichever reply carries the highest value strictly greater than
// its own, grounded on network.py's maintenance_msg_in/SYNC_GAMESTATE
// signal (the original leaves the merge itself to the reader; this
// implementation follows spec.md's resolution of that ambiguity).
func (e *Engine) handover(ctx context.Context) {
	e.mu.RLock()
	query := e.state.Clock
	e.mu.RUnlock()

	qcopy := query
	e.sender.SendAll(domain.ClassServerClient, domain.Snapshot{SyncQuery: &qcopy}, e.selfID)

	deadline := time.NewTimer(e.cfg.SyncWait)
	defer deadline.Stop()

	bestClock := query
	var best domain.SyncReply
	haveBest := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			if haveBest {
				e.applySync(best)
			}
			return
		case msg, ok := <-e.serverIn:
			if !ok {
				return
			}
			var reply domain.SyncReply
			if err := json.Unmarshal(msg.Payload, &reply); err != nil || reply.SyncGamestate == 0 {
				e.handleServerMsg(msg)
				continue
			}
			if reply.SyncGamestate > bestClock {
				bestClock = reply.SyncGamestate
				best = reply
				haveBest = true
			}
		}
	}
}

func (e *Engine) applySync(reply domain.SyncReply) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Clock = reply.SyncGamestate
	if reply.Players != nil {
		e.state.Players = reply.Players
	}
	if reply.Gatherables != nil {
		e.state.Gatherables = reply.Gatherables
	}
	if reply.Scoreboard != nil {
		e.state.Scoreboard = reply.Scoreboard
	}
	log.Printf("[gametick] adopted handover state at clock %d", reply.SyncGamestate)
}

func clonePlayers(in map[string]domain.Player) map[string]domain.Player {
	out := make(map[string]domain.Player, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func clonePositions(in map[string]domain.Position) map[string]domain.Position {
	out := make(map[string]domain.Position, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
