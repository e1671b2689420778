// Package api provides the node's HTTP introspection surface: health,
// Prometheus metrics, the peer registry, and the locally-known game state
// (spec §6). Grounded on the teacher's internal/api.Server — chi router,
// middleware stack, and writeJSON helper kept verbatim in shape, routes
// replaced for the mesh domain.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/huntmesh/huntmesh/internal/domain"
	"github.com/huntmesh/huntmesh/internal/meshregistry"
)

// StateView is anything that can report the locally-known game state —
// satisfied by both internal/gametick.Engine (while leading) and
// internal/client.Client (while following).
type StateView interface {
	State() (clock uint64, players map[string]domain.Player, gatherables map[string]domain.Position)
}

// Server is the node's HTTP API server.
type Server struct {
	reg            *meshregistry.Registry
	state          StateView
	metricsEnabled bool
}

// NewServer creates a new API server bound to the node's registry and
// whichever state view (leader or follower) the daemon is currently
// running.
func NewServer(reg *meshregistry.Registry, state StateView) *Server {
	return &Server{reg: reg, state: state}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/peers", s.handlePeers)
	r.Get("/state", s.handleState)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

type peerView struct {
	NodeID   string    `json:"node_id"`
	Address  string    `json:"address,omitempty"`
	IsSelf   bool      `json:"is_self"`
	IsLeader bool      `json:"is_leader"`
	LastSeen time.Time `json:"last_seen"`
}

func (s *Server) handlePeers(w http.ResponseWriter, req *http.Request) {
	leaderID, hasLeader := s.reg.Leader()
	snapshot := s.reg.Snapshot()
	out := make([]peerView, 0, len(snapshot))
	for _, p := range snapshot {
		out = append(out, peerView{
			NodeID:   p.NodeID.String(),
			Address:  p.Address,
			IsSelf:   p.IsSelf,
			IsLeader: hasLeader && p.NodeID == leaderID,
			LastSeen: p.LastSeen,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type stateResponse struct {
	Clock       uint64                     `json:"clock"`
	Players     map[string]domain.Player   `json:"players"`
	Gatherables map[string]domain.Position `json:"gatherables"`
}

func (s *Server) handleState(w http.ResponseWriter, req *http.Request) {
	clock, players, gatherables := s.state.State()
	writeJSON(w, http.StatusOK, stateResponse{Clock: clock, Players: players, Gatherables: gatherables})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
