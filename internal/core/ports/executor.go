// Package ports defines the core interfaces for the application.
package ports

import (
	"context"

	"go.trai.ch/ship/internal/core/domain"
)

// Executor runs external processes.
//
//go:generate go run go.uber.org/mock/mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type Executor interface {
	// Run executes cmd and waits for it to exit.
	//
	// The result is non-nil whenever the process was started, including when it exited
	// non-zero or was killed by cmd.Timeout. The error is non-nil for any non-zero exit.
	Run(ctx context.Context, cmd *domain.Command) (*domain.CommandResult, error)
}
