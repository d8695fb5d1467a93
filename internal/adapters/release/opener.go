package release

import (
	"context"

	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports"
	"go.trai.ch/zerr"
)

// Opener implements ports.ReleaseStoreOpener.
type Opener struct{}

// NewOpener creates a new Opener.
func NewOpener() *Opener {
	return &Opener{}
}

// Open connects to the release target.
func (o *Opener) Open(ctx context.Context, target domain.ReleaseTarget) (ports.ReleaseStore, error) {
	switch target.Kind {
	case domain.TargetDir, "":
		if target.Dir == "" {
			return nil, zerr.With(domain.ErrInvalidConfig, "field", "release.dir")
		}
		return NewDirStore(target.Dir)
	case domain.TargetS3:
		return NewS3Store(ctx, target.S3)
	default:
		return nil, zerr.With(zerr.With(domain.ErrInvalidConfig, "field", "release.target"), "value", string(target.Kind))
	}
}
