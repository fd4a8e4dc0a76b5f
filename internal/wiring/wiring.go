// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/dake/internal/adapters/artifact"
	_ "go.trai.ch/dake/internal/adapters/config"
	_ "go.trai.ch/dake/internal/adapters/hosts"
	_ "go.trai.ch/dake/internal/adapters/logger"
	_ "go.trai.ch/dake/internal/adapters/makefile"
	_ "go.trai.ch/dake/internal/adapters/shell"
	_ "go.trai.ch/dake/internal/adapters/telemetry"
	// Register transport, engine, and app nodes.
	_ "go.trai.ch/dake/internal/app"
	_ "go.trai.ch/dake/internal/daemon"
	_ "go.trai.ch/dake/internal/engine/scheduler"
	_ "go.trai.ch/dake/internal/remote"
)
