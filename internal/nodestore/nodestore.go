// Package nodestore persists a node's own identity across process
// restarts, so a node rejoining the mesh keeps the same election priority
// and the same player row (spec.md §9 resolves NodeID as the players/
// scoreboard map key, so an identity that drifts on every restart loses a
// player's historical score).
//
// Grounded on the teacher's internal/infra/sqlite package: migrations as a
// plain []string executed in order, operations as methods on a small DB
// wrapper. modernc.org/sqlite is used instead of a cgo driver, matching the
// teacher's go.mod (no cgo toolchain requirement for a gameplay LAN node).
package nodestore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/huntmesh/huntmesh/internal/domain"
)

// Store wraps the identity database.
type Store struct {
	db *sql.DB
}

// migrations returns the schema statements, applied in order on Open.
func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS node_identity (
			id      INTEGER PRIMARY KEY CHECK (id = 1),
			node_id TEXT NOT NULL
		)`,
	}
}

// Open opens (creating if absent) the sqlite file at path and applies
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open nodestore %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer, avoid SQLITE_BUSY

	for _, stmt := range migrations() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate nodestore: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadOrCreateNodeID returns the previously-persisted NodeID, or generates
// and persists a fresh one if this is the node's first run.
func (s *Store) LoadOrCreateNodeID() (domain.NodeID, error) {
	var raw string
	err := s.db.QueryRow(`SELECT node_id FROM node_identity WHERE id = 1`).Scan(&raw)
	switch {
	case err == nil:
		return domain.ParseNodeID(raw)
	case err == sql.ErrNoRows:
		id := domain.NewNodeID()
		if _, err := s.db.Exec(`INSERT INTO node_identity (id, node_id) VALUES (1, ?)`, id.String()); err != nil {
			return domain.NodeID{}, fmt.Errorf("persist node id: %w", err)
		}
		return id, nil
	default:
		return domain.NodeID{}, fmt.Errorf("load node id: %w", err)
	}
}
