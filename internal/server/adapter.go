package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/relaykit/relay/internal/core/domain"
	"github.com/relaykit/relay/internal/pipeline"
	"github.com/relaykit/relay/internal/registry"
	"github.com/relaykit/relay/internal/storage"
)

// Adapter bridges net/http to the pipeline orchestrator. It owns the
// whole incoming() call: transport-level timeouts wrap it from the
// middleware chain, and pipeline faults never escape past it.
type Adapter struct {
	orch     *pipeline.Orchestrator
	handler  *registry.Service
	logger   *slog.Logger
	recorder storage.InteractionStore
}

// NewAdapter wires the orchestrator and the designated handler service.
// recorder may be nil to disable the audit trail.
func NewAdapter(orch *pipeline.Orchestrator, handler *registry.Service, logger *slog.Logger, recorder storage.InteractionStore) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{orch: orch, handler: handler, logger: logger, recorder: recorder}
}

// ServeHTTP runs one request through the pipeline and writes the
// transport response.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	ctx, note := pipeline.WithAbortNote(r.Context())
	raw := &RawRequest{HTTP: r, Body: body}

	out, err := a.orch.Incoming(ctx, a.handler, raw)
	if err != nil {
		AddError(ctx, err)
		a.failRequest(w, r, err)
		a.record(r, 0, storage.OutcomeError, "", start)
		return
	}

	resp, ok := out.(*Response)
	if !ok {
		a.logger.Error("sender produced unexpected output type",
			slog.String("path", r.URL.Path),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		a.record(r, 0, storage.OutcomeError, "", start)
		return
	}

	for name, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	for _, c := range resp.Cookies {
		http.SetCookie(w, c)
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		w.Write(resp.Body)
	}

	outcome, label := storage.OutcomeOK, ""
	if note.Aborted {
		outcome, label = storage.OutcomeAborted, note.Label
		AddLogField(ctx, "abort", note.Label)
	}
	a.record(r, resp.Status, outcome, label, start)
}

// failRequest maps pipeline faults onto transport responses. Missing
// routes and missing senders are setup errors; they are logged loudly
// and answered generically.
func (a *Adapter) failRequest(w http.ResponseWriter, r *http.Request, err error) {
	var handlerNotFound *domain.HandlerNotFoundError
	var noSender *domain.NoSenderFoundError

	switch {
	case errors.As(err, &handlerNotFound):
		a.logger.Error("no handler for route",
			slog.String("method", handlerNotFound.Method),
			slog.String("path", handlerNotFound.Path),
		)
		http.Error(w, "not found", http.StatusNotFound)
	case errors.As(err, &noSender):
		a.logger.Error("no sender registered")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	default:
		a.logger.Error("pipeline failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (a *Adapter) record(r *http.Request, status int, outcome storage.Outcome, label string, start time.Time) {
	if a.recorder == nil {
		return
	}
	in := &storage.Interaction{
		ID:         uuid.New().String(),
		Method:     r.Method,
		Path:       r.URL.Path,
		Status:     status,
		Outcome:    outcome,
		Label:      label,
		DurationNS: time.Since(start).Nanoseconds(),
	}
	if err := a.recorder.RecordInteraction(r.Context(), in); err != nil {
		a.logger.Warn("record interaction", slog.String("error", err.Error()))
	}
}
