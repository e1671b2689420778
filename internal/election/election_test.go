package election

import (
	"encoding/json"
	"testing"

	"github.com/huntmesh/huntmesh/internal/domain"
	"github.com/huntmesh/huntmesh/internal/meshregistry"
)

type fakeSender struct {
	sent []domain.OutMsg
}

func (f *fakeSender) Send(msg domain.OutMsg) { f.sent = append(f.sent, msg) }
func (f *fakeSender) SendAll(class domain.MsgClass, payload any, exclude domain.NodeID) {
	f.sent = append(f.sent, domain.OutMsg{PeerID: domain.NodeID{}, Class: class, Payload: payload})
}

func strMsg(from domain.NodeID, s string) domain.InMsg {
	b, _ := json.Marshal(s)
	return domain.InMsg{PeerID: from, Payload: b}
}

func TestElectFromLowerIDRepliesOK(t *testing.T) {
	self := domain.NewNodeID()
	lower := domain.NewNodeID()
	for !lower.Less(self) {
		lower = domain.NewNodeID()
	}
	higher := domain.NewNodeID()
	for !self.Less(higher) {
		higher = domain.NewNodeID()
	}

	reg := meshregistry.New(self)
	reg.Upsert(lower, "a")
	reg.Upsert(higher, "b")
	sender := &fakeSender{}
	e := New(DefaultConfig(), reg, sender, self, nil, nil)

	e.handleMessage(strMsg(lower, domain.ElectElect))

	if !e.waitingForOK {
		t.Error("expected waitingForOK after receiving ELECT with a higher peer still outstanding")
	}
	found := false
	for _, m := range sender.sent {
		if m.PeerID == lower && m.Payload == domain.ElectOK {
			found = true
		}
	}
	if !found {
		t.Error("expected OK sent back to lower-id sender")
	}
}

func TestElectWithNoHigherPeerPromotesImmediately(t *testing.T) {
	self := domain.NewNodeID()
	lower := domain.NewNodeID()
	for !lower.Less(self) {
		lower = domain.NewNodeID()
	}

	reg := meshregistry.New(self)
	reg.Upsert(lower, "a")
	sender := &fakeSender{}
	called := false
	e := New(DefaultConfig(), reg, sender, self, nil, func() { called = true })

	e.handleMessage(strMsg(lower, domain.ElectElect))

	if e.waitingForOK {
		t.Error("should not arm an OK wait when no higher peer exists to answer it")
	}
	if !reg.IsLeader() {
		t.Error("expected immediate self-promotion when HigherThan(self) is empty")
	}
	if !called {
		t.Error("expected onLead callback to fire on immediate promotion")
	}
}

func TestOKTransitionsToWaitingForCoord(t *testing.T) {
	self := domain.NewNodeID()
	reg := meshregistry.New(self)
	sender := &fakeSender{}
	e := New(DefaultConfig(), reg, sender, self, nil, nil)
	e.waitingForOK = true

	e.handleMessage(strMsg(domain.NewNodeID(), domain.ElectOK))

	if e.waitingForOK || !e.waitingForCoord {
		t.Errorf("waitingForOK=%v waitingForCoord=%v, want false/true", e.waitingForOK, e.waitingForCoord)
	}
}

func TestCoordSetsLeader(t *testing.T) {
	self := domain.NewNodeID()
	leader := domain.NewNodeID()
	reg := meshregistry.New(self)
	sender := &fakeSender{}
	e := New(DefaultConfig(), reg, sender, self, nil, nil)
	e.waitingForCoord = true

	e.handleMessage(strMsg(leader, domain.ElectCoord))

	got, ok := reg.Leader()
	if !ok || got != leader {
		t.Errorf("Leader() = %v, %v; want %v, true", got, ok, leader)
	}
	if e.waitingForCoord {
		t.Error("waitingForCoord should be cleared")
	}
}

func TestBecomeLeaderBroadcastsAndSetsSelf(t *testing.T) {
	self := domain.NewNodeID()
	reg := meshregistry.New(self)
	sender := &fakeSender{}
	called := false
	e := New(DefaultConfig(), reg, sender, self, nil, func() { called = true })

	e.becomeLeader()

	if !reg.IsLeader() {
		t.Error("expected self to be leader")
	}
	if !called {
		t.Error("expected onLead callback to fire")
	}
	if len(sender.sent) != 1 || sender.sent[0].Payload != domain.ElectCoord {
		t.Errorf("sent = %v, want one COORD broadcast", sender.sent)
	}
}

func TestTimeoutWaitingForOKBecomesLeader(t *testing.T) {
	self := domain.NewNodeID()
	reg := meshregistry.New(self)
	sender := &fakeSender{}
	e := New(DefaultConfig(), reg, sender, self, nil, nil)
	e.waitingForOK = true
	e.notified[domain.NewNodeID()] = true

	e.handleTimeout()

	if !reg.IsLeader() {
		t.Error("expected self-promotion on OK timeout")
	}
	if len(e.notified) != 0 {
		t.Error("notified set should be cleared before becoming leader")
	}
}

func TestTimeoutWaitingForCoordRestartsElection(t *testing.T) {
	self := domain.NewNodeID()
	higher := domain.NewNodeID()
	for !self.Less(higher) {
		higher = domain.NewNodeID()
	}
	reg := meshregistry.New(self)
	reg.Upsert(higher, "a")
	sender := &fakeSender{}
	e := New(DefaultConfig(), reg, sender, self, nil, nil)
	e.waitingForCoord = true

	e.handleTimeout()

	if e.waitingForCoord {
		t.Error("waitingForCoord should be cleared")
	}
	if len(sender.sent) != 1 || sender.sent[0].PeerID != higher {
		t.Errorf("sent = %v, want ELECT resent to higher peer", sender.sent)
	}
}
