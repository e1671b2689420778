// Package meshregistry implements the thread-safe peer registry (spec §3, §5).
//
// It is the only non-queue shared mutable structure in the node. All
// operations take a single sync.RWMutex, which is not reentrant: no method
// re-acquires it while holding it, and it is never held across I/O; iteration always works off a
// snapshot copy, following the same "take the lock, copy, release" shape
// the teacher uses in internal/infra/federation.Registry and
// internal/infra/gossip.SWIM.Members().
package meshregistry

import (
	"sync"
	"time"

	"github.com/huntmesh/huntmesh/internal/domain"
)

// Registry maps NodeID to PeerEntry, plus the single current-leader slot
// (spec §3). The leader slot is only ever written by the election engine,
// but the registry doesn't enforce that — it's a convention documented here
// and honored by internal/election.
type Registry struct {
	mu       sync.RWMutex
	selfID   domain.NodeID
	peers    map[domain.NodeID]domain.PeerEntry
	leaderID domain.NodeID
	hasLeader bool
}

// New creates a registry seeded with a self-entry (address empty, no
// connection handle, per spec §3 "may be absent for the self-entry").
func New(selfID domain.NodeID) *Registry {
	r := &Registry{
		selfID: selfID,
		peers:  make(map[domain.NodeID]domain.PeerEntry),
	}
	r.peers[selfID] = domain.PeerEntry{NodeID: selfID, IsSelf: true, LastSeen: time.Now()}
	return r
}

// SelfID returns this node's own id.
func (r *Registry) SelfID() domain.NodeID { return r.selfID }

// Upsert inserts a new peer or refreshes an existing one's address/LastSeen.
// Connection handles are tracked by the caller (mesh package), not here —
// the registry only needs the NodeID, address and liveness timestamp.
func (r *Registry) Upsert(id domain.NodeID, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.peers[id]
	if !ok {
		entry = domain.PeerEntry{NodeID: id}
	}
	if address != "" {
		entry.Address = address
	}
	entry.LastSeen = time.Now()
	r.peers[id] = entry
}

// Touch refreshes only the liveness timestamp of a known peer. No-op if
// the peer isn't registered.
func (r *Registry) Touch(id domain.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.peers[id]
	if !ok {
		return
	}
	entry.LastSeen = time.Now()
	r.peers[id] = entry
}

// Remove evicts a peer. The receiver task is the unique owner of removal
// (spec §4.3); this method is the mechanism, not the policy.
func (r *Registry) Remove(id domain.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
	if r.hasLeader && r.leaderID == id {
		r.hasLeader = false
		r.leaderID = domain.NodeID{}
	}
}

// Contains reports whether id is currently registered.
func (r *Registry) Contains(id domain.NodeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[id]
	return ok
}

// Get returns a copy of the peer entry for id, if present.
func (r *Registry) Get(id domain.NodeID) (domain.PeerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.peers[id]
	return e, ok
}

// Snapshot returns a copy of all registered peers (including self),
// safe to range over without holding the lock.
func (r *Registry) Snapshot() []domain.PeerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PeerEntry, 0, len(r.peers))
	for _, e := range r.peers {
		out = append(out, e)
	}
	return out
}

// PeerIDs returns a copy of all registered NodeIDs excluding self.
func (r *Registry) PeerIDs() []domain.NodeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.NodeID, 0, len(r.peers))
	for id := range r.peers {
		if id != r.selfID {
			out = append(out, id)
		}
	}
	return out
}

// HigherThan returns peer ids (excluding self) whose NodeID sorts greater
// than self — the set the election engine notifies with ELECT (spec §4.4).
func (r *Registry) HigherThan(id domain.NodeID) []domain.NodeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.NodeID, 0)
	for pid := range r.peers {
		if id.Less(pid) {
			out = append(out, pid)
		}
	}
	return out
}

// SetLeader sets the current leader id. Only internal/election should call
// this (spec §3 invariant c).
func (r *Registry) SetLeader(id domain.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaderID = id
	r.hasLeader = true
}

// Leader returns the current leader id, if any has been elected yet.
func (r *Registry) Leader() (domain.NodeID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.leaderID, r.hasLeader
}

// IsLeader reports whether this node currently considers itself leader.
func (r *Registry) IsLeader() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasLeader && r.leaderID == r.selfID
}

// SweepStale removes any non-self peer whose LastSeen is older than ttl,
// returning the ids removed (spec §5 "Stale-peer reaping"). The caller
// decides the sweep cadence; this method just implements one pass.
func (r *Registry) SweepStale(ttl time.Duration) []domain.NodeID {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := make([]domain.NodeID, 0)
	for id, e := range r.peers {
		if e.IsSelf {
			continue
		}
		if e.LastSeen.Before(cutoff) {
			delete(r.peers, id)
			removed = append(removed, id)
			if r.hasLeader && r.leaderID == id {
				r.hasLeader = false
				r.leaderID = domain.NodeID{}
			}
		}
	}
	return removed
}

// Count returns the number of registered peers including self.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
