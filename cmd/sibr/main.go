// Command sibr captures, deduplicates and serves game-state snapshots.
package main

import (
	"context"
	"os"

	"github.com/roach88/sibr/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
