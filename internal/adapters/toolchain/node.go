package toolchain

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/ship/internal/adapters/logger"
	"go.trai.ch/ship/internal/adapters/shell"
	"go.trai.ch/ship/internal/core/ports"
)

// NodeID is the unique identifier for the toolchain resolver Graft node.
const NodeID graft.ID = "adapter.toolchain"

func init() {
	graft.Register(graft.Node[ports.ToolchainResolver]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{shell.NodeID, logger.NodeID},
		Run: func(ctx context.Context) (ports.ToolchainResolver, error) {
			executor, err := graft.Dep[ports.Executor](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewResolver(executor, log), nil
		},
	})
}
