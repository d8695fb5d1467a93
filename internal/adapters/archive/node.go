package archive

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/ship/internal/core/ports"
)

// NodeID is the unique identifier for the packer Graft node.
const NodeID graft.ID = "adapter.archive"

func init() {
	graft.Register(graft.Node[ports.Packer]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Packer, error) {
			return NewPacker(), nil
		},
	})
}
