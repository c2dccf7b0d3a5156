// Package main is the entrypoint for the newsdesk web console.
// The console serves the login page and the admin, editor and reporter areas,
// each behind its route and role guards.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/newsdesk/console/internal/config"
	"github.com/newsdesk/console/internal/server"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return server.Run(ctx, server.Params{
		Name:           "console",
		PortFromConfig: func(cfg *config.Config) int { return cfg.Console.HTTPPort },
		Setup:          setup,
	}, nil)
}
