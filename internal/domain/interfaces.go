package domain

// ─── Collaborator Interfaces (§6) ───────────────────────────────────────────
// These define the boundary between the distributed core and the rendering/
// input subsystem that spec.md §1 explicitly puts out of scope. The core
// only needs to expose enough for a UI implementer to subscribe to state and
// inject moves — it never imports a UI package itself.

// SnapshotObserver is notified whenever the locally-merged players or
// gatherables maps change. It must not block or retain the maps passed in.
type SnapshotObserver func(players map[string]Player, gatherables map[string]Position)

// MoveInjector accepts local player input and routes it to the current
// leader. Implementations of this interface live in internal/client.
type MoveInjector interface {
	InjectMove(dir Direction) error
}

// ─── Outbound message plumbing ──────────────────────────────────────────────

// OutMsg is one entry of the out_all queue (§3): a message bound for a
// single peer (or the local node itself, for self-addressed short-circuit
// sends) on a given class.
type OutMsg struct {
	PeerID  NodeID
	Class   MsgClass
	Payload any
}

// InMsg is one entry of a demultiplexed inbound queue (§3): a (peer_id,
// payload) tuple. The payload is still raw JSON; each consumer decodes it
// into the shape it expects.
type InMsg struct {
	PeerID  NodeID
	Payload []byte // raw JSON, decoded by the consumer into the right shape
}

// Sender is the narrow interface election/gametick/client need to emit
// messages without depending on the full mesh package.
type Sender interface {
	Send(msg OutMsg)
	SendAll(class MsgClass, payload any, exclude NodeID)
}
