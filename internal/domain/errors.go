package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Transport errors (§4.1, §7)
	ErrConnectionClosed = errors.New("connection closed")
	ErrBadEncoding       = errors.New("frame payload is not valid UTF-8")

	// Handshake errors (§4.3, §7)
	ErrHandshakeGameMismatch = errors.New("handshake game-id mismatch")
	ErrHandshakeMalformed    = errors.New("handshake declaration malformed")
	ErrHandshakeWrongDirection = errors.New("peer should have connected as listener")

	// Registry errors
	ErrPeerNotFound = errors.New("peer not found in registry")
	ErrPeerExists   = errors.New("peer already registered")

	// Election errors
	ErrElectionNotLeader = errors.New("node is not the current leader")

	// Game-state errors (§7: local logic violations are ignored, not fatal,
	// but some callers still want a typed value to check for / log)
	ErrUnknownPlayer      = errors.New("move references unknown player")
	ErrOutOfBounds        = errors.New("move target is out of bounds")
	ErrGatherableConflict = errors.New("gatherable id already in use")
)
