// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/ship/internal/adapters/archive"
	_ "go.trai.ch/ship/internal/adapters/cas"
	_ "go.trai.ch/ship/internal/adapters/config"
	_ "go.trai.ch/ship/internal/adapters/fs"
	_ "go.trai.ch/ship/internal/adapters/logger"
	_ "go.trai.ch/ship/internal/adapters/pip"
	_ "go.trai.ch/ship/internal/adapters/release"
	_ "go.trai.ch/ship/internal/adapters/shell"
	_ "go.trai.ch/ship/internal/adapters/telemetry/progrock"
	_ "go.trai.ch/ship/internal/adapters/toolchain"
	// Register app nodes.
	_ "go.trai.ch/ship/internal/app"
)
