package ports

import (
	"context"
	"time"

	"go.trai.ch/ship/internal/core/domain"
)

// PackageManager installs build-time packages into a resolved toolchain.
//
//go:generate go run go.uber.org/mock/mockgen -source=package_manager.go -destination=mocks/mock_package_manager.go -package=mocks
type PackageManager interface {
	// Installed returns normalized package name to version for the toolchain.
	Installed(ctx context.Context, binding *domain.ToolchainBinding) (map[string]string, error)

	// Install installs a single requirement, bounded by timeout. Failures carry
	// KindDependencyUnavailable or KindVersionConflict.
	Install(ctx context.Context, binding *domain.ToolchainBinding, spec domain.DependencySpec, timeout time.Duration) error
}
