// Package election implements the Bully leader election algorithm (spec
// §4.4), grounded directly on the original network.py's bully2() state
// machine and restyled as a single run-loop goroutine, in the manner of
// the teacher's internal/infra/gossip.SWIM failure detector loop.
package election

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/huntmesh/huntmesh/internal/domain"
	"github.com/huntmesh/huntmesh/internal/meshregistry"
	"github.com/huntmesh/huntmesh/internal/observability"
)

// Config controls election timing (spec §4.4).
type Config struct {
	WarmUp       time.Duration // delay before the first self-election (network.py: 6s)
	OKTimeout    time.Duration // time to wait for OK after sending ELECT (2s)
	CoordTimeout time.Duration // time to wait for COORD after the last OK (4s)
}

// DefaultConfig returns the original's timing constants.
func DefaultConfig() Config {
	return Config{
		WarmUp:       6 * time.Second,
		OKTimeout:    2 * time.Second,
		CoordTimeout: 4 * time.Second,
	}
}

// OnLeaderFn is invoked once this node assumes leadership, so the daemon
// can trigger a gamestate sync request (network.py's maintenance_msg_in /
// SYNC_GAMESTATE).
type OnLeaderFn func()

// Election runs the Bully algorithm against a shared registry.
type Election struct {
	cfg    Config
	reg    *meshregistry.Registry
	sender domain.Sender
	selfID domain.NodeID
	in     <-chan domain.InMsg
	onLead OnLeaderFn

	waitingForOK    bool
	waitingForCoord bool
	notified        map[domain.NodeID]bool
}

// New creates an Election engine. in is normally Fabric.ElectionIn.
func New(cfg Config, reg *meshregistry.Registry, sender domain.Sender, selfID domain.NodeID, in <-chan domain.InMsg, onLead OnLeaderFn) *Election {
	return &Election{
		cfg:      cfg,
		reg:      reg,
		sender:   sender,
		selfID:   selfID,
		in:       in,
		onLead:   onLead,
		notified: make(map[domain.NodeID]bool),
	}
}

// Run blocks, driving the election state machine until ctx is cancelled.
// After WarmUp it injects a self-ELECT to kick off the first election.
func (e *Election) Run(ctx context.Context) {
	warm := time.NewTimer(e.cfg.WarmUp)
	select {
	case <-ctx.Done():
		warm.Stop()
		return
	case <-warm.C:
	}

	observability.ElectionsStarted.Inc()
	e.sender.Send(domain.OutMsg{PeerID: e.selfID, Class: domain.ClassElection, Payload: domain.ElectElect})

	for {
		var timeout <-chan time.Time
		var timer *time.Timer
		switch {
		case e.waitingForOK:
			timer = time.NewTimer(e.cfg.OKTimeout)
			timeout = timer.C
		case e.waitingForCoord:
			timer = time.NewTimer(e.cfg.CoordTimeout)
			timeout = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-timeout:
			e.handleTimeout()
		case msg, ok := <-e.in:
			if timer != nil {
				timer.Stop()
			}
			if !ok {
				return
			}
			e.handleMessage(msg)
		}
	}
}

func (e *Election) handleTimeout() {
	switch {
	case e.waitingForOK:
		log.Printf("[election] timed out waiting for OK, assuming coordinator")
		e.waitingForOK = false
		for k := range e.notified {
			delete(e.notified, k)
		}
		e.becomeLeader()
	case e.waitingForCoord:
		log.Printf("[election] timed out waiting for COORD, restarting election")
		e.waitingForCoord = false
		for k := range e.notified {
			delete(e.notified, k)
		}
		observability.ElectionsStarted.Inc()
		e.sendElectionMessages()
	}
}

func (e *Election) handleMessage(msg domain.InMsg) {
	var payload string
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("[election] malformed payload from %v: %v", msg.PeerID, err)
		return
	}

	senderID := msg.PeerID
	if senderID != e.selfID {
		log.Printf("[election] %s from %v, OK=%v COORD=%v", payload, senderID, e.waitingForOK, e.waitingForCoord)
	}

	switch payload {
	case domain.ElectElect:
		if senderID.Less(e.selfID) {
			e.sender.Send(domain.OutMsg{PeerID: senderID, Class: domain.ClassElection, Payload: domain.ElectOK})
		}
		e.sendElectionMessages()
		if len(e.reg.HigherThan(e.selfID)) == 0 {
			// No higher peer to wait on — promote self now rather than
			// arming an OK timeout nothing will ever answer (spec §4.4).
			e.waitingForOK = false
			e.waitingForCoord = false
			e.becomeLeader()
			return
		}
		e.waitingForOK = true
		e.waitingForCoord = false
	case domain.ElectOK:
		e.waitingForOK = false
		e.waitingForCoord = true
	case domain.ElectCoord:
		e.waitingForOK = false
		e.waitingForCoord = false
		for k := range e.notified {
			delete(e.notified, k)
		}
		log.Printf("[election] setting %v as leader", senderID)
		e.reg.SetLeader(senderID)
		if senderID != e.selfID {
			observability.IsLeader.Set(0)
		}
	}
}

// sendElectionMessages sends ELECT to every known peer with a higher
// NodeID, skipping anyone already notified this election (spec §4.4).
func (e *Election) sendElectionMessages() {
	for _, peerID := range e.reg.HigherThan(e.selfID) {
		if e.notified[peerID] {
			continue
		}
		e.notified[peerID] = true
		e.sender.Send(domain.OutMsg{PeerID: peerID, Class: domain.ClassElection, Payload: domain.ElectElect})
	}
}

// becomeLeader broadcasts COORD, claims the leader slot, and notifies the
// caller to trigger a gamestate sync (spec §4.4, §4.6).
func (e *Election) becomeLeader() {
	if e.reg.IsLeader() {
		log.Printf("[election] already leader")
	} else {
		log.Printf("[election] assuming leader status")
	}
	e.sender.SendAll(domain.ClassElection, domain.ElectCoord, e.selfID)
	e.reg.SetLeader(e.selfID)
	if e.onLead != nil {
		e.onLead()
	}
}
