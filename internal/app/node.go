package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/ship/internal/adapters/archive"            //nolint:depguard // Wired in app layer
	"go.trai.ch/ship/internal/adapters/cas"                //nolint:depguard // Wired in app layer
	"go.trai.ch/ship/internal/adapters/config"             //nolint:depguard // Wired in app layer
	"go.trai.ch/ship/internal/adapters/fs"                 //nolint:depguard // Wired in app layer
	"go.trai.ch/ship/internal/adapters/logger"             //nolint:depguard // Wired in app layer
	"go.trai.ch/ship/internal/adapters/pip"                //nolint:depguard // Wired in app layer
	"go.trai.ch/ship/internal/adapters/release"            //nolint:depguard // Wired in app layer
	"go.trai.ch/ship/internal/adapters/shell"              //nolint:depguard // Wired in app layer
	"go.trai.ch/ship/internal/adapters/telemetry/progrock" //nolint:depguard // Wired in app layer
	"go.trai.ch/ship/internal/adapters/toolchain"          //nolint:depguard // Wired in app layer
	"go.trai.ch/ship/internal/core/ports"
	"go.trai.ch/ship/internal/engine/pipeline"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	// App Node
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			cas.NodeID,
			release.NodeID,
			toolchain.NodeID,
			pip.NodeID,
			shell.NodeID,
			fs.HasherNodeID,
			archive.NodeID,
			progrock.NodeID,
			logger.NodeID,
		},
		Run: runAppNode,
	})

	// Components Node
	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
			progrock.NodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			app, err := graft.Dep[*App](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			telemetry, err := graft.Dep[ports.Telemetry](ctx)
			if err != nil {
				return nil, err
			}

			return NewComponents(app, log, telemetry), nil
		},
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	stores, err := graft.Dep[ports.ArtifactStoreOpener](ctx)
	if err != nil {
		return nil, err
	}

	releases, err := graft.Dep[ports.ReleaseStoreOpener](ctx)
	if err != nil {
		return nil, err
	}

	resolver, err := graft.Dep[ports.ToolchainResolver](ctx)
	if err != nil {
		return nil, err
	}

	pm, err := graft.Dep[ports.PackageManager](ctx)
	if err != nil {
		return nil, err
	}

	executor, err := graft.Dep[ports.Executor](ctx)
	if err != nil {
		return nil, err
	}

	hasher, err := graft.Dep[ports.Hasher](ctx)
	if err != nil {
		return nil, err
	}

	packer, err := graft.Dep[ports.Packer](ctx)
	if err != nil {
		return nil, err
	}

	telemetry, err := graft.Dep[ports.Telemetry](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	return New(loader, stores, releases, pipeline.Deps{
		Resolver:       resolver,
		PackageManager: pm,
		Executor:       executor,
		Hasher:         hasher,
		Packer:         packer,
		Telemetry:      telemetry,
		Logger:         log,
	}), nil
}
