// Package cli implements the huntmesh-node command-line interface, grounded
// on the teacher's internal/cli.agent.go cobra usage: a package-level
// rootCmd, subcommands registered from init(), errors returned from RunE
// rather than os.Exit calls scattered through handlers.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/huntmesh/huntmesh/internal/daemon"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "huntmesh-node",
	Short: "Run a node in a LAN peer-to-peer game mesh",
	Long: `huntmesh-node runs a single node of a leaderless-until-elected peer mesh:
nodes discover each other over LAN broadcast, elect a leader with the Bully
algorithm, and the leader runs the authoritative game tick while every other
node reduces its broadcast snapshots.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file (defaults applied for anything absent)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(peersCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start this node and join the mesh",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	node, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("construct node: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stdout, "node %s starting (game=%s)\n", node.SelfID(), cfg.Node.GameID)
	return node.Run(ctx)
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Query the node's HTTP API for its current peer list",
	RunE:  runPeers,
}

// peerSummary mirrors internal/api's peer JSON wire shape — a one-shot
// dump of the running node's registry (SPEC_FULL.md §10).
type peerSummary struct {
	NodeID   string    `json:"node_id"`
	Address  string    `json:"address"`
	IsSelf   bool      `json:"is_self"`
	IsLeader bool      `json:"is_leader"`
	LastSeen time.Time `json:"last_seen"`
}

func runPeers(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	url := fmt.Sprintf("http://%s:%d/peers", cfg.API.Host, cfg.API.Port)
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	var peers []peerSummary
	if err := json.NewDecoder(resp.Body).Decode(&peers); err != nil {
		return fmt.Errorf("decode peers response: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NODE ID\tADDRESS\tSELF\tLEADER\tLAST SEEN")
	for _, p := range peers {
		fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%s\n", p.NodeID, p.Address, p.IsSelf, p.IsLeader, p.LastSeen.Format(time.RFC3339))
	}
	return w.Flush()
}
