// Package storage defines the pipeline's audit-trail types and the
// store interface implemented by concrete backends.
package storage

import (
	"context"
	"time"
)

// Outcome classifies how a pipeline run ended.
type Outcome string

const (
	// OutcomeOK means the handler response was sent normally.
	OutcomeOK Outcome = "ok"
	// OutcomeAborted means a pipeline abort supplied the response.
	OutcomeAborted Outcome = "aborted"
	// OutcomeError means a fault propagated to the transport adapter.
	OutcomeError Outcome = "error"
)

// Interaction is one audited pipeline run.
type Interaction struct {
	ID         string
	Method     string
	Path       string
	Status     int
	Outcome    Outcome
	Label      string
	DurationNS int64
	CreatedAt  time.Time
}

// InteractionStore persists pipeline audit rows.
type InteractionStore interface {
	RecordInteraction(ctx context.Context, in *Interaction) error
	ListInteractions(ctx context.Context, limit int) ([]*Interaction, error)
	Close() error
}
