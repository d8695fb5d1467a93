package ports

import "go.trai.ch/ship/internal/core/domain"

// ArtifactStore keeps bundle archives and the per-platform artifact records.
//
//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type ArtifactStore interface {
	// Get returns the current artifact record for a platform.
	// Returns nil, nil if not found.
	Get(platform string) (*domain.Artifact, error)

	// Put replaces the artifact record for a.Platform.
	Put(a domain.Artifact) error

	// Ingest moves a finished archive into the content-addressed area and returns its
	// final path.
	Ingest(staging, digest string) (string, error)

	// StagingPath returns a path on the same filesystem as the content-addressed area.
	StagingPath(platform string) string
}

// ArtifactStoreOpener opens the artifact store of a state directory.
type ArtifactStoreOpener interface {
	Open(stateDir string) (ArtifactStore, error)
}
