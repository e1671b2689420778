// Command huntmesh-node runs a single node of the LAN peer-to-peer game mesh.
package main

import (
	"fmt"
	"os"

	"github.com/huntmesh/huntmesh/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
