package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/relaykit/relay/internal/core/domain"
	"github.com/relaykit/relay/internal/match"
	"github.com/relaykit/relay/internal/pipeline"
	"github.com/relaykit/relay/internal/registry"
	"github.com/relaykit/relay/internal/storage"
)

type memoryRecorder struct {
	rows []*storage.Interaction
}

func (m *memoryRecorder) RecordInteraction(_ context.Context, in *storage.Interaction) error {
	m.rows = append(m.rows, in)
	return nil
}

func (m *memoryRecorder) ListInteractions(_ context.Context, _ int) ([]*storage.Interaction, error) {
	return m.rows, nil
}

func (m *memoryRecorder) Close() error { return nil }

func testAdapter(t *testing.T, recorder storage.InteractionStore) *Adapter {
	t.Helper()

	b := registry.NewBuilder()
	RegisterTransport(b)
	b.Service("users").
		Match(match.MustGlob("/users/**")).
		OnHandle("getUser", "GET", "/users/42",
			[]registry.ParamKind{registry.ParamSearchParams},
			func(ctx context.Context, args []any) (*domain.NormalizedResponse, error) {
				params := args[0].(*domain.SearchParams)
				return domain.NewNormalizedResponse(200, map[string]any{
					"id":      42,
					"verbose": params.Get("verbose"),
				}), nil
			}).
		OnHandle("denyUser", "DELETE", "/users/42", nil,
			func(ctx context.Context, args []any) (*domain.NormalizedResponse, error) {
				return nil, domain.AbortForbidden("read only").WithLabel("read_only")
			})

	dir, err := b.Build()
	if err != nil {
		t.Fatalf("build directory: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := pipeline.New(dir, pipeline.WithLogger(logger))
	users, _ := dir.Lookup("users")
	return NewAdapter(orch, users, logger, recorder)
}

func TestAdapter_ServeHTTP(t *testing.T) {
	rec := &memoryRecorder{}
	adapter := testAdapter(t, rec)

	w := httptest.NewRecorder()
	adapter.ServeHTTP(w, httptest.NewRequest("GET", "/users/42?verbose=1", nil))

	if w.Code != 200 {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["verbose"] != "1" {
		t.Errorf("body = %v", body)
	}

	if len(rec.rows) != 1 {
		t.Fatalf("recorded %d interactions", len(rec.rows))
	}
	row := rec.rows[0]
	if row.Outcome != storage.OutcomeOK || row.Status != 200 || row.Path != "/users/42" {
		t.Errorf("row = %+v", row)
	}
	if row.ID == "" {
		t.Error("missing interaction id")
	}
}

func TestAdapter_AbortWritesAbortResponse(t *testing.T) {
	rec := &memoryRecorder{}
	adapter := testAdapter(t, rec)

	w := httptest.NewRecorder()
	adapter.ServeHTTP(w, httptest.NewRequest("DELETE", "/users/42", nil))

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if len(rec.rows) != 1 {
		t.Fatalf("recorded %d interactions", len(rec.rows))
	}
	row := rec.rows[0]
	if row.Outcome != storage.OutcomeAborted || row.Label != "read_only" {
		t.Errorf("row = %+v", row)
	}
}

func TestAdapter_UnknownRouteIs404(t *testing.T) {
	rec := &memoryRecorder{}
	adapter := testAdapter(t, rec)

	w := httptest.NewRecorder()
	adapter.ServeHTTP(w, httptest.NewRequest("GET", "/users/999", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if len(rec.rows) != 1 || rec.rows[0].Outcome != storage.OutcomeError {
		t.Errorf("rows = %+v", rec.rows)
	}
}

func TestAdapter_MalformedBodyIs400Abort(t *testing.T) {
	adapter := testAdapter(t, nil)

	r := httptest.NewRequest("GET", "/users/42", strings.NewReader(`{"broken`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	adapter.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
