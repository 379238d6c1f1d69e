// Package main is the entry point of gradectl, the command-line front end
// of the grade analytics engine.
//
// Every analytics subcommand reads score records either from a YAML/JSON
// dataset (--input) or from the PostgreSQL score store (DATABASE_URL),
// runs one query and prints the result envelope as JSON.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
