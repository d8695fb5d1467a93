// Package main is the entry point for the ship release tool.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/grindlemire/graft"
	"go.trai.ch/ship/cmd/ship/commands"
	"go.trai.ch/ship/internal/app"
	"go.trai.ch/ship/internal/core/domain"
	_ "go.trai.ch/ship/internal/wiring"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string, opts ...func(*app.App)) int {
	// 0. Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 1. Initialize application components
	components, _, err := graft.ExecuteFor[*app.Components](ctx)
	if err != nil {
		// Logger is not available yet if initialization failed
		// Write directly to stderr
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		return 1
	}

	// Apply options
	for _, opt := range opts {
		opt(components.App)
	}

	// 2. Interface - CLI
	cli := commands.New(components.App)
	cli.SetArgs(args)

	// 3. Execution
	err = cli.Execute(ctx)
	if cerr := components.Telemetry.Close(); cerr != nil {
		components.Logger.Warn("failed to close telemetry: " + cerr.Error())
	}
	if err != nil {
		components.Logger.Error(err)
		return domain.ExitCode(err)
	}
	return 0
}
