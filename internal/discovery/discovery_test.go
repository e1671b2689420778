package discovery

import (
	"testing"

	"github.com/huntmesh/huntmesh/internal/domain"
)

func TestHandleDatagramKnownPeerTouches(t *testing.T) {
	known := domain.NewNodeID()
	var touched domain.NodeID
	touchCalls := 0

	d := &Discovery{
		cfg: Config{GameID: "g1"},
		contains: func(id domain.NodeID) bool { return id == known },
		touch: func(id domain.NodeID) {
			touched = id
			touchCalls++
		},
		onPeer: func(id domain.NodeID, ip string) {
			t.Fatal("onPeer should not be called for a known sender")
		},
	}

	d.handleDatagram("10.0.0.5," + known.String() + ",g1")

	if touchCalls != 1 || touched != known {
		t.Errorf("touch called %d times with %v, want 1 call with %v", touchCalls, touched, known)
	}
}

func TestHandleDatagramUnknownPeerNotified(t *testing.T) {
	unknown := domain.NewNodeID()
	var gotID domain.NodeID
	var gotIP string
	calls := 0

	d := &Discovery{
		cfg:      Config{GameID: "g1"},
		contains: func(domain.NodeID) bool { return false },
		touch:    func(domain.NodeID) {},
		onPeer: func(id domain.NodeID, ip string) {
			gotID = id
			gotIP = ip
			calls++
		},
	}

	d.handleDatagram("10.0.0.9," + unknown.String() + ",g1")

	if calls != 1 || gotID != unknown || gotIP != "10.0.0.9" {
		t.Errorf("onPeer(%v, %q) called %d times, want 1 call with (%v, %q)", gotID, gotIP, calls, unknown, "10.0.0.9")
	}
}

func TestHandleDatagramWrongGameIgnored(t *testing.T) {
	id := domain.NewNodeID()
	d := &Discovery{
		cfg:      Config{GameID: "g1"},
		contains: func(domain.NodeID) bool { return false },
		touch:    func(domain.NodeID) {},
		onPeer: func(domain.NodeID, string) {
			t.Fatal("onPeer should not be called for a different game id")
		},
	}

	d.handleDatagram("10.0.0.9," + id.String() + ",other-game")
}

func TestHandleDatagramMalformedIgnored(t *testing.T) {
	d := &Discovery{
		cfg:      Config{GameID: "g1"},
		contains: func(domain.NodeID) bool { return false },
		touch:    func(domain.NodeID) {},
		onPeer: func(domain.NodeID, string) {
			t.Fatal("onPeer should not be called for malformed datagrams")
		},
	}

	d.handleDatagram("not-enough-fields")
	d.handleDatagram("ip,not-a-uuid,g1")
}
