// Package relay provides the public API for embedding the pipeline.
// This is the stable API for external consumers.
package relay

import (
	"github.com/relaykit/relay/internal/runtime"
)

// Engine is the main entry point for running the pipeline.
// See internal/runtime.Engine for full documentation.
type Engine = runtime.Engine

// Option is a functional option for configuring an Engine.
type Option = runtime.Option

// New creates a new Engine with the given options.
// Example:
//
//	eng, err := relay.New(
//	    relay.WithConfigFile("config.yaml"),
//	    relay.WithParticipants(registerUsers),
//	    relay.WithHandlerService("users"),
//	)
var New = runtime.New

// Configuration options
var (
	WithConfig         = runtime.WithConfig
	WithConfigFile     = runtime.WithConfigFile
	WithLogger         = runtime.WithLogger
	WithParticipants   = runtime.WithParticipants
	WithHandlerService = runtime.WithHandlerService
	WithRecorder       = runtime.WithRecorder
)
