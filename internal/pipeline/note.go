package pipeline

import "context"

type abortNoteKey struct{}

// AbortNote is a mutable per-request marker the transport adapter can
// attach to the context to learn, after Incoming returns, whether the
// response it received came from an abort.
type AbortNote struct {
	Aborted bool
	Label   string
	Status  int
}

// WithAbortNote attaches a fresh note to ctx and returns both.
func WithAbortNote(ctx context.Context) (context.Context, *AbortNote) {
	note := &AbortNote{}
	return context.WithValue(ctx, abortNoteKey{}, note), note
}

func abortNoteFrom(ctx context.Context) *AbortNote {
	note, _ := ctx.Value(abortNoteKey{}).(*AbortNote)
	return note
}
