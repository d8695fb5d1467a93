package ports

import (
	"context"

	"go.trai.ch/ship/internal/core/domain"
)

// ReleaseStore is the durable release target: tag to platform to asset.
//
//go:generate go run go.uber.org/mock/mockgen -source=release.go -destination=mocks/mock_release.go -package=mocks
type ReleaseStore interface {
	// Lookup returns the asset published for (tag, platform).
	// Returns nil, nil if not found.
	Lookup(ctx context.Context, tag, platform string) (*domain.ReleaseAsset, error)

	// Put uploads the file at contentPath as asset unless (tag, platform) is already taken.
	// It reports created=false when identical content was already present and fails with
	// KindPublishDigestConflict when different content is. A partially uploaded asset is
	// never visible to Lookup or Manifest.
	Put(ctx context.Context, asset domain.ReleaseAsset, contentPath string) (stored *domain.ReleaseAsset, created bool, err error)

	// Manifest lists every asset published under tag, ordered by platform.
	Manifest(ctx context.Context, tag string) ([]domain.ReleaseAsset, error)
}

// ReleaseStoreOpener connects to the configured release target.
type ReleaseStoreOpener interface {
	Open(ctx context.Context, target domain.ReleaseTarget) (ReleaseStore, error)
}
