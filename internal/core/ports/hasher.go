package ports

import "go.trai.ch/ship/internal/core/domain"

// Hasher defines the interface for computing bundle input hashes.
//
//go:generate go run go.uber.org/mock/mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks
type Hasher interface {
	// ComputeInputHash hashes the sources under root together with the environment's
	// package set and the platform definition.
	ComputeInputHash(root string, sources, exclude []string, env *domain.Environment, platform domain.PlatformSpec) (string, error)
}
