// Command oasisrun orchestrates catastrophe model runs: key resolution,
// Oasis file generation, workspace preparation and calculation engine
// execution, plus the HTTP lookup service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "oasisrun:", err)
		os.Exit(1)
	}
}
