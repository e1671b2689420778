// Package daemon wires the mesh, election, tick, client, and API layers
// into a single running node (spec §9's "one coordinator object per
// process"), and defines its TOML configuration file, grounded on the
// teacher's internal/daemon config shape (nested structs decoded with
// BurntSushi/toml) as shown by its surviving config_test.go.
package daemon

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the full node configuration, loaded from a TOML file with
// BurntSushi/toml (spec.md ambient stack).
type Config struct {
	Node     NodeConfig     `toml:"node"`
	Election ElectionConfig `toml:"election"`
	Tick     TickConfig     `toml:"tick"`
	API      APIConfig      `toml:"api"`
	Log      LogConfig      `toml:"log"`
}

// NodeConfig controls identity, storage, and transport binding.
type NodeConfig struct {
	GameID   string `toml:"game_id"`
	DataDir  string `toml:"data_dir"`
	PeerPort int    `toml:"peer_port"`
	BindAddr string `toml:"bind_addr"`
}

// ElectionConfig controls Bully algorithm timing (spec §4.4).
type ElectionConfig struct {
	WarmUpSeconds       int `toml:"warm_up_seconds"`
	OKTimeoutSeconds    int `toml:"ok_timeout_seconds"`
	CoordTimeoutSeconds int `toml:"coord_timeout_seconds"`
}

// TickConfig controls the authoritative game loop (spec §4.6).
type TickConfig struct {
	RateHz         int `toml:"rate_hz"`
	SyncWaitMillis int `toml:"sync_wait_millis"`
}

// APIConfig controls the HTTP introspection surface (spec §6).
type APIConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
}

// LogConfig controls log verbosity tagging.
type LogConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns the spec-mandated defaults (ports and timings). The
// grid bounds and limits are not configurable; they are constants in
// internal/gametick.
func DefaultConfig() Config {
	return Config{
		Node: NodeConfig{
			GameID:   "huntmesh",
			DataDir:  defaultDataDir(),
			PeerPort: 43234,
			BindAddr: "0.0.0.0",
		},
		Election: ElectionConfig{
			WarmUpSeconds:       6,
			OKTimeoutSeconds:    2,
			CoordTimeoutSeconds: 4,
		},
		Tick: TickConfig{
			RateHz:         5,
			SyncWaitMillis: 3000,
		},
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			MetricsEnabled: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a TOML config file at path, layering its values over
// DefaultConfig. A missing file is not an error — the defaults apply.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".huntmesh"
	}
	return home + string(os.PathSeparator) + ".huntmesh"
}
