// Package client implements the client-side state reducer (spec §4.7):
// it merges snapshots pushed by the current leader, answers sync queries
// during handover, and routes local move input to whichever peer currently
// holds the leader slot. Grounded on the original network.py's
// client_send_to_server/poll_client_msg_queue pairing, restyled as a
// Run(ctx)-driven reducer like the teacher's internal/app/executor.
package client

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/huntmesh/huntmesh/internal/domain"
	"github.com/huntmesh/huntmesh/internal/meshregistry"
)

// Client consumes leader-broadcast snapshots and injects local moves.
type Client struct {
	reg      *meshregistry.Registry
	sender   domain.Sender
	selfID   domain.NodeID
	in       <-chan domain.InMsg
	playerID string
	observer domain.SnapshotObserver

	mu          sync.RWMutex
	clock       uint64
	players     map[string]domain.Player
	gatherables map[string]domain.Position
	scoreboard  map[string]domain.ScoreEntry
}

// New creates a Client reducer. in is normally Fabric.ClientIn. playerID
// is this node's key into the players/scoreboard maps (spec.md §9's
// NodeID-as-string wire fix — playerID is selfID.String()).
func New(reg *meshregistry.Registry, sender domain.Sender, selfID domain.NodeID, in <-chan domain.InMsg, playerID string, observer domain.SnapshotObserver) *Client {
	return &Client{
		reg:         reg,
		sender:      sender,
		selfID:      selfID,
		in:          in,
		playerID:    playerID,
		observer:    observer,
		players:     make(map[string]domain.Player),
		gatherables: make(map[string]domain.Position),
		scoreboard:  make(map[string]domain.ScoreEntry),
	}
}

// Run blocks, applying inbound snapshots until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.in:
			if !ok {
				return
			}
			c.handle(msg)
		}
	}
}

// handle merges one leader-originated snapshot. Per spec §4.7, messages
// from any peer other than the current leader are ignored — a stale
// broadcast from a peer that has since lost the leader slot must not
// clobber state adopted from the real leader.
func (c *Client) handle(msg domain.InMsg) {
	leaderID, hasLeader := c.reg.Leader()
	if !hasLeader || msg.PeerID != leaderID {
		return
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(msg.Payload, &snap); err != nil {
		log.Printf("[client] malformed snapshot from %v: %v", msg.PeerID, err)
		return
	}

	if snap.SyncQuery != nil {
		c.replySyncQuery(leaderID, *snap.SyncQuery)
	}

	c.mu.Lock()
	if snap.Clock != nil {
		c.clock = *snap.Clock
	}
	if snap.Players != nil {
		c.players = snap.Players
	}
	if snap.Gatherables != nil {
		c.gatherables = snap.Gatherables
	}
	if snap.Scoreboard != nil {
		c.scoreboard = snap.Scoreboard
	}
	players := clonePlayers(c.players)
	gatherables := clonePositions(c.gatherables)
	c.mu.Unlock()

	if c.observer != nil {
		c.observer(players, gatherables)
	}
}

// replySyncQuery answers a handover query only if this client's own clock
// is strictly newer than the leader's (spec §4.6 step 2) — otherwise our
// view is no more authoritative than what just got elected.
func (c *Client) replySyncQuery(leaderID domain.NodeID, queryClock uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.clock <= queryClock {
		return
	}
	reply := domain.SyncReply{
		SyncGamestate: c.clock,
		Players:       clonePlayers(c.players),
		Gatherables:   clonePositions(c.gatherables),
		Scoreboard:    cloneScores(c.scoreboard),
	}
	c.sender.Send(domain.OutMsg{PeerID: leaderID, Class: domain.ClassClientServer, Payload: reply})
}

// InjectMove implements domain.MoveInjector: routes local input to the
// current leader as a class-s MoveCommand (spec §4.7).
func (c *Client) InjectMove(dir domain.Direction) error {
	if !domain.ValidDirection(dir) {
		return domain.ErrOutOfBounds
	}
	leaderID, ok := c.reg.Leader()
	if !ok {
		return domain.ErrElectionNotLeader
	}
	c.sender.Send(domain.OutMsg{
		PeerID: leaderID,
		Class:  domain.ClassClientServer,
		Payload: domain.MoveCommand{
			Move:     dir,
			PlayerID: c.playerID,
		},
	})
	return nil
}

// State returns a copy of the locally-merged view, for the API layer.
func (c *Client) State() (clock uint64, players map[string]domain.Player, gatherables map[string]domain.Position) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clock, clonePlayers(c.players), clonePositions(c.gatherables)
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

func cloneScores(in map[string]domain.ScoreEntry) map[string]domain.ScoreEntry {
	out := make(map[string]domain.ScoreEntry, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
