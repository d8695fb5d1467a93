package ports

import "context"

// Packer produces and reads deterministic bundle archives.
//
//go:generate go run go.uber.org/mock/mockgen -source=packer.go -destination=mocks/mock_packer.go -package=mocks
type Packer interface {
	// Pack archives srcDir into dest and returns the archive digest and size. dest only
	// appears once the archive is complete.
	Pack(ctx context.Context, srcDir, dest string) (digest string, size int64, err error)

	// Unpack extracts archive into destDir, which must exist.
	Unpack(ctx context.Context, archive, destDir string) error

	// Digest recomputes the digest of an archive on disk.
	Digest(path string) (string, error)
}
