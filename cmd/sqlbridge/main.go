// Command sqlbridge runs SQL against embedded SQLite through the sqlbridge
// adapter.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomyedwab/sqlbridge/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
