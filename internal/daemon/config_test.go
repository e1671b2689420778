package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Node.PeerPort != 43234 {
		t.Errorf("Node.PeerPort = %d, want 43234", cfg.Node.PeerPort)
	}
	if cfg.Election.OKTimeoutSeconds != 2 {
		t.Errorf("Election.OKTimeoutSeconds = %d, want 2", cfg.Election.OKTimeoutSeconds)
	}
	if cfg.Election.CoordTimeoutSeconds != 4 {
		t.Errorf("Election.CoordTimeoutSeconds = %d, want 4", cfg.Election.CoordTimeoutSeconds)
	}
	if cfg.Tick.RateHz != 5 {
		t.Errorf("Tick.RateHz = %d, want 5", cfg.Tick.RateHz)
	}
	if cfg.Tick.SyncWaitMillis != 3000 {
		t.Errorf("Tick.SyncWaitMillis = %d, want 3000 (spec §4.6/§5 handover grace)", cfg.Tick.SyncWaitMillis)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want 8080", cfg.API.Port)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.PeerPort != 43234 {
		t.Errorf("PeerPort = %d, want default 43234", cfg.Node.PeerPort)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[node]
game_id = "arena-1"
peer_port = 9000

[api]
port = 9090
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.GameID != "arena-1" {
		t.Errorf("GameID = %q, want arena-1", cfg.Node.GameID)
	}
	if cfg.Node.PeerPort != 9000 {
		t.Errorf("PeerPort = %d, want 9000", cfg.Node.PeerPort)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	// Unspecified sections should still carry defaults.
	if cfg.Election.OKTimeoutSeconds != 2 {
		t.Errorf("Election.OKTimeoutSeconds = %d, want default 2", cfg.Election.OKTimeoutSeconds)
	}
}
