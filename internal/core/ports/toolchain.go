package ports

import (
	"context"

	"go.trai.ch/ship/internal/core/domain"
)

// ToolchainResolver binds a platform's logical tool names to executables.
//
//go:generate go run go.uber.org/mock/mockgen -source=toolchain.go -destination=mocks/mock_toolchain.go -package=mocks
type ToolchainResolver interface {
	// Resolve searches searchPath for an interpreter satisfying the platform's constraint and
	// writes logical-name shims below runDir. It fails with KindToolchainNotFound.
	Resolve(
		ctx context.Context,
		runDir string,
		searchPath []string,
		platform domain.PlatformSpec,
	) (*domain.ToolchainBinding, error)
}
