// Package mesh implements the peer fabric: handshake, per-peer connections,
// the multiplexed message classes, and the shared sender/receiver tasks
// (spec §4.3). It is grounded on the teacher's internal/infra/gossip.SWIM
// for the Start(ctx)-blocks / background-goroutine shape and on the
// original network.py's Connection/handle_peer_send/handle_peer_recv for
// the actual protocol being reproduced.
package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/huntmesh/huntmesh/internal/domain"
	"github.com/huntmesh/huntmesh/internal/meshregistry"
	"github.com/huntmesh/huntmesh/internal/transport"
)

// Config controls the peer fabric.
type Config struct {
	GameID   string // partitions unrelated instances sharing a LAN (spec §4.2)
	PeerPort int    // TCP port peer connections are accepted/dialed on (spec §6: 43234)
	BindAddr string // interface to bind the peer listener to, e.g. "0.0.0.0"
}

// DefaultConfig returns the spec-mandated peer port.
func DefaultConfig(gameID string) Config {
	return Config{GameID: gameID, PeerPort: 43234, BindAddr: "0.0.0.0"}
}

// Fabric owns the peer registry's connections, the demultiplexed inbound
// queues, and the shared outbound queue (spec §3).
type Fabric struct {
	cfg    Config
	reg    *meshregistry.Registry
	selfID domain.NodeID

	ElectionIn    chan domain.InMsg
	ClientIn      chan domain.InMsg
	ServerIn      chan domain.InMsg
	OutAll        chan domain.OutMsg
	MaintenanceIn chan string

	connMu sync.Mutex
	conns  map[domain.NodeID]*transport.Framed

	listener net.Listener
}

// New creates a Fabric bound to the given registry and self id.
func New(cfg Config, reg *meshregistry.Registry, selfID domain.NodeID) *Fabric {
	return &Fabric{
		cfg:           cfg,
		reg:           reg,
		selfID:        selfID,
		ElectionIn:    make(chan domain.InMsg, 256),
		ClientIn:      make(chan domain.InMsg, 256),
		ServerIn:      make(chan domain.InMsg, 256),
		OutAll:        make(chan domain.OutMsg, 256),
		MaintenanceIn: make(chan string, 16),
		conns:         make(map[domain.NodeID]*transport.Framed),
	}
}

// Send implements domain.Sender — enqueues a single-peer message.
func (f *Fabric) Send(msg domain.OutMsg) {
	f.OutAll <- msg
}

// SendAll enqueues a broadcast to every known peer except exclude (and
// except self, which never receives a class broadcast duplicate of its own
// short-circuit sends here — callers that want to include self call Send
// explicitly).
func (f *Fabric) SendAll(class domain.MsgClass, payload any, exclude domain.NodeID) {
	for _, id := range f.reg.PeerIDs() {
		if id == exclude {
			continue
		}
		f.OutAll <- domain.OutMsg{PeerID: id, Class: class, Payload: payload}
	}
}

// Start begins the peer listener and the shared sender task. It returns
// once the listener is bound; both tasks run until ctx is cancelled.
func (f *Fabric) Start(ctx context.Context) error {
	addr := net.JoinHostPort(f.cfg.BindAddr, strconv.Itoa(f.cfg.PeerPort))
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen peer port %s: %w", addr, err)
	}
	f.listener = ln

	go f.acceptLoop(ctx)
	go f.senderLoop(ctx)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	return nil
}

// acceptLoop accepts inbound stream connections and performs the handshake
// (spec §4.3). Rejects are silent per spec §7.
func (f *Fabric) acceptLoop(ctx context.Context) {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Printf("[mesh] accept error: %v", err)
				return
			}
		}
		go f.handleInbound(ctx, conn)
	}
}

func (f *Fabric) handleInbound(ctx context.Context, conn net.Conn) {
	ft := transport.New(conn)
	peerID, err := f.handshakeInbound(ft)
	if err != nil {
		log.Printf("[mesh] inbound handshake failed from %s: %v", conn.RemoteAddr(), err)
		ft.Close()
		return
	}

	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	f.registerConn(peerID, host, ft)
	go f.receiverLoop(ctx, peerID, ft)
}

// ConnectToPeer implements the connection-direction rule (spec §4.3): a
// node dials out only to peers with a strictly greater NodeID. Peers with a
// lesser NodeID are expected to dial us; if peerID < selfID this is a no-op.
// If peerID == selfID, it records a self entry with no connection handle.
func (f *Fabric) ConnectToPeer(ctx context.Context, peerID domain.NodeID, addr string) {
	if peerID == f.selfID {
		f.reg.Upsert(peerID, "")
		return
	}
	if !f.selfID.Less(peerID) {
		// peerID has lower priority than us — they connect inbound.
		return
	}
	if f.reg.Contains(peerID) {
		f.reg.Touch(peerID)
		return
	}

	go f.dialAndHandshake(ctx, peerID, addr)
}

func (f *Fabric) dialAndHandshake(ctx context.Context, peerID domain.NodeID, addr string) {
	dialAddr := net.JoinHostPort(addr, strconv.Itoa(f.cfg.PeerPort))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", dialAddr)
	if err != nil {
		log.Printf("[mesh] dial %s failed: %v", dialAddr, err)
		return
	}
	ft := transport.New(conn)

	gotID, err := f.handshakeOutbound(ft)
	if err != nil {
		log.Printf("[mesh] outbound handshake to %s failed: %v", dialAddr, err)
		ft.Close()
		return
	}
	if gotID != peerID {
		// The peer's declared id doesn't match what discovery told us —
		// still usable, the declaration is authoritative.
		peerID = gotID
	}

	f.registerConn(peerID, addr, ft)
	go f.receiverLoop(ctx, peerID, ft)
}

func (f *Fabric) registerConn(peerID domain.NodeID, address string, ft *transport.Framed) {
	f.connMu.Lock()
	f.conns[peerID] = ft
	f.connMu.Unlock()
	f.reg.Upsert(peerID, address)
}

// handshakeOutbound sends our declaration first, then reads theirs — used
// by the dialing side (spec §4.3).
func (f *Fabric) handshakeOutbound(ft *transport.Framed) (domain.NodeID, error) {
	if err := ft.Send(f.declaration()); err != nil {
		return domain.NodeID{}, err
	}
	msg, err := ft.Receive()
	if err != nil {
		return domain.NodeID{}, err
	}
	return f.parseDeclaration(msg, false)
}

// handshakeInbound reads the peer's declaration first, validates it
// (including the wrong-direction check, spec §4.3), then replies with ours.
func (f *Fabric) handshakeInbound(ft *transport.Framed) (domain.NodeID, error) {
	msg, err := ft.Receive()
	if err != nil {
		return domain.NodeID{}, err
	}
	peerID, err := f.parseDeclaration(msg, true)
	if err != nil {
		return domain.NodeID{}, err
	}
	if err := ft.Send(f.declaration()); err != nil {
		return domain.NodeID{}, err
	}
	return peerID, nil
}

func (f *Fabric) declaration() string {
	return f.cfg.GameID + "," + f.selfID.String()
}

// parseDeclaration parses "<game-id>,<node-id>" and, for inbound
// handshakes, rejects a peer whose id is greater than ours (it should have
// connected to us instead, spec §4.3).
func (f *Fabric) parseDeclaration(msg string, inbound bool) (domain.NodeID, error) {
	parts := strings.SplitN(msg, ",", 2)
	if len(parts) != 2 {
		return domain.NodeID{}, domain.ErrHandshakeMalformed
	}
	if parts[0] != f.cfg.GameID {
		return domain.NodeID{}, domain.ErrHandshakeGameMismatch
	}
	peerID, err := domain.ParseNodeID(parts[1])
	if err != nil {
		return domain.NodeID{}, domain.ErrHandshakeMalformed
	}
	if inbound && f.selfID.Less(peerID) {
		return domain.NodeID{}, domain.ErrHandshakeWrongDirection
	}
	return peerID, nil
}

// receiverLoop reads framed messages from one peer in a loop and
// demultiplexes by class tag into the _in queues (spec §4.3). It is the
// unique owner of peer removal: a ConnectionClosed error evicts the peer
// and ends the task.
func (f *Fabric) receiverLoop(ctx context.Context, peerID domain.NodeID, ft *transport.Framed) {
	for {
		raw, err := ft.Receive()
		if err != nil {
			f.connMu.Lock()
			delete(f.conns, peerID)
			f.connMu.Unlock()
			f.reg.Remove(peerID)
			return
		}

		if len(raw) < 1 {
			log.Printf("[mesh] empty frame from %s, skipping", peerID)
			continue
		}

		class := domain.MsgClass(raw[0])
		payload := raw[1:]

		if !class.Valid() {
			log.Printf("[mesh] unknown class tag %q from %s, skipping", raw[0], peerID)
			continue
		}
		if !json.Valid([]byte(payload)) {
			log.Printf("[mesh] malformed JSON from %s, skipping", peerID)
			continue
		}

		in := domain.InMsg{PeerID: peerID, Payload: []byte(payload)}
		switch class {
		case domain.ClassElection:
			f.ElectionIn <- in
		case domain.ClassClientServer:
			f.ServerIn <- in
		case domain.ClassServerClient:
			f.ClientIn <- in
		}
	}
}

// senderLoop drains OutAll and dispatches each message (spec §4.3). Self-
// addressed sends short-circuit directly into the matching inbound queue.
func (f *Fabric) senderLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-f.OutAll:
			f.dispatch(msg)
		}
	}
}

func (f *Fabric) dispatch(msg domain.OutMsg) {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		log.Printf("[mesh] marshal failed for %s: %v", msg.PeerID, err)
		return
	}

	if msg.PeerID == f.selfID {
		in := domain.InMsg{PeerID: f.selfID, Payload: data}
		switch msg.Class {
		case domain.ClassElection:
			f.ElectionIn <- in
		case domain.ClassClientServer:
			f.ServerIn <- in
		case domain.ClassServerClient:
			f.ClientIn <- in
		}
		return
	}

	f.connMu.Lock()
	ft, ok := f.conns[msg.PeerID]
	f.connMu.Unlock()
	if !ok {
		// Peer no longer in registry — silently dropped (spec §4.3).
		return
	}

	frame := string(msg.Class) + string(data)
	if err := ft.Send(frame); err != nil {
		log.Printf("[mesh] send to %s failed: %v", msg.PeerID, err)
	}
}
