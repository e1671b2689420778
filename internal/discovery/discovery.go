// Package discovery implements LAN peer discovery: a UDP broadcaster and
// listener on a fixed port (spec §4.2). It is grounded on the original
// network.py broadcast_ip/listen_for_broadcasts functions, reshaped into
// the teacher's Config + Start(ctx)-blocks task style
// (internal/infra/gossip.SWIM).
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/huntmesh/huntmesh/internal/domain"
)

// Port is the fixed UDP port discovery broadcasts and listens on (spec §6).
const Port = 50000

// Config controls discovery cadence and partitioning.
type Config struct {
	GameID   string        // fixed literal partitioning unrelated instances (spec §4.2)
	Interval time.Duration // broadcast cadence (default 5s)
}

// DefaultConfig returns the spec-mandated 5-second cadence.
func DefaultConfig(gameID string) Config {
	return Config{GameID: gameID, Interval: 5 * time.Second}
}

// OnPeerFn is invoked for every sender id not yet present in the registry,
// with the sender's IP. The caller (daemon wiring) decides whether to dial
// out, per the connection-direction rule in mesh.Fabric.ConnectToPeer.
type OnPeerFn func(senderID domain.NodeID, senderIP string)

// Discovery runs the broadcaster and listener tasks.
type Discovery struct {
	cfg      Config
	selfID   domain.NodeID
	localIP  func() string
	contains func(domain.NodeID) bool
	touch    func(domain.NodeID)
	onPeer   OnPeerFn
}

// New creates a Discovery instance.
//
//   - contains reports whether a NodeID is already registered
//   - touch refreshes a known peer's liveness timestamp
//   - onPeer is called for every newly-seen sender
func New(cfg Config, selfID domain.NodeID, contains func(domain.NodeID) bool, touch func(domain.NodeID), onPeer OnPeerFn) *Discovery {
	return &Discovery{
		cfg:      cfg,
		selfID:   selfID,
		localIP:  LocalIP,
		contains: contains,
		touch:    touch,
		onPeer:   onPeer,
	}
}

// Start runs the broadcaster and listener concurrently until ctx is done.
func (d *Discovery) Start(ctx context.Context) error {
	go d.broadcastLoop(ctx)
	go d.listenLoop(ctx)
	return nil
}

// broadcastLoop sends "<ip>,<node-id>,<game-id>" to the subnet broadcast
// address every Interval (spec §4.2).
func (d *Discovery) broadcastLoop(ctx context.Context) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		log.Printf("[discovery] broadcast socket error: %v", err)
		return
	}
	defer conn.Close()

	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: Port}

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	send := func() {
		ip := d.localIP()
		msg := fmt.Sprintf("%s,%s,%s", ip, d.selfID.String(), d.cfg.GameID)
		if _, err := conn.WriteToUDP([]byte(msg), dst); err != nil {
			log.Printf("[discovery] broadcast send error: %v", err)
		}
	}

	send()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send()
		}
	}
}

// listenLoop binds 0.0.0.0:50000 and dispatches each datagram (spec §4.2).
func (d *Discovery) listenLoop(ctx context.Context) {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: Port}
	lc := net.ListenConfig{Control: reuseAddrControl}
	pc, err := lc.ListenPacket(ctx, "udp4", addr.String())
	if err != nil {
		log.Printf("[discovery] listen error: %v", err)
		return
	}
	conn := pc.(*net.UDPConn)
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 1024)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}
		d.handleDatagram(string(buf[:n]))
	}
}

func (d *Discovery) handleDatagram(msg string) {
	parts := strings.SplitN(msg, ",", 3)
	if len(parts) != 3 {
		return
	}
	senderIP, senderIDStr, senderGameID := parts[0], parts[1], parts[2]
	if senderGameID != d.cfg.GameID {
		return
	}
	senderID, err := domain.ParseNodeID(senderIDStr)
	if err != nil {
		return
	}

	if d.contains(senderID) {
		d.touch(senderID)
		return
	}

	if d.onPeer != nil {
		d.onPeer(senderID, senderIP)
	}
}

// LocalIP determines the node's own address for the broadcast payload.
// GAME_IP overrides auto-detection for multi-NIC hosts (spec §6). Falls
// back to 127.0.0.1 if no route can be determined.
func LocalIP() string {
	if ip := os.Getenv("GAME_IP"); ip != "" {
		return ip
	}
	conn, err := net.Dial("udp4", "10.255.255.255:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	local := conn.LocalAddr().(*net.UDPAddr)
	return local.IP.String()
}
