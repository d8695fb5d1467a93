package release

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/ship/internal/core/ports"
)

// NodeID is the unique identifier for the release store opener Graft node.
const NodeID graft.ID = "adapter.release_store"

func init() {
	graft.Register(graft.Node[ports.ReleaseStoreOpener]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.ReleaseStoreOpener, error) {
			return NewOpener(), nil
		},
	})
}
