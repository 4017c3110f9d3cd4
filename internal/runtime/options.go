package runtime

import (
	"fmt"
	"log/slog"

	"github.com/relaykit/relay/internal/config"
	"github.com/relaykit/relay/internal/registry"
	"github.com/relaykit/relay/internal/storage"
)

// Option is a functional option for configuring an Engine.
type Option func(*Engine) error

// WithConfig uses an already-loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) error {
		e.cfg = cfg
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file, with RELAY_
// environment variables layered on top.
func WithConfigFile(path string) Option {
	return func(e *Engine) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		e.cfg = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithParticipants appends registration functions run against the
// builder at Start. Services register in the order the functions are
// supplied.
func WithParticipants(fns ...func(*registry.Builder) error) Option {
	return func(e *Engine) error {
		e.register = append(e.register, fns...)
		return nil
	}
}

// WithHandlerService designates the service whose handle operations
// answer dispatch. The name must match a registered participant.
func WithHandlerService(name string) Option {
	return func(e *Engine) error {
		e.handler = name
		return nil
	}
}

// WithRecorder injects an audit store, overriding the storage section
// of the config. The caller keeps ownership and must close it.
func WithRecorder(store storage.InteractionStore) Option {
	return func(e *Engine) error {
		e.recorder = store
		return nil
	}
}
