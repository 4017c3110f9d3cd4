package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relaykit/relay/internal/core/domain"
)

func receivedPatch(t *testing.T, r *http.Request, body []byte) *domain.RequestPatch {
	t.Helper()
	req := domain.NewNormalizedRequest(&RawRequest{HTTP: r, Body: body})
	patch, err := receiveHTTP(context.Background(), req)
	if err != nil {
		t.Fatalf("receiveHTTP: %v", err)
	}
	return patch
}

func TestReceiveHTTP(t *testing.T) {
	r := httptest.NewRequest("POST", "/users/42?b=2&a=1&b=3", nil)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-Trace", "abc")
	r.AddCookie(&http.Cookie{Name: "sid", Value: "s1"})

	patch := receivedPatch(t, r, []byte(`{"name":"ada"}`))

	if patch.Method != "POST" || patch.Path != "/users/42" {
		t.Errorf("method/path = %s %s", patch.Method, patch.Path)
	}
	if patch.Headers.Get("X-Trace") != "abc" {
		t.Error("headers not copied")
	}
	if patch.Cookies["sid"] != "s1" {
		t.Errorf("cookies = %v", patch.Cookies)
	}

	var keys []string
	patch.SearchParams.Each(func(k, v string) { keys = append(keys, k+"="+v) })
	want := []string{"b=2", "a=1", "b=3"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("query order = %v, want %v", keys, want)
		}
	}

	body, ok := patch.Body.(map[string]any)
	if !ok || body["name"] != "ada" {
		t.Errorf("body = %v", patch.Body)
	}
}

func TestReceiveHTTP_NonJSONBodyKeptRaw(t *testing.T) {
	r := httptest.NewRequest("POST", "/upload", nil)
	r.Header.Set("Content-Type", "application/octet-stream")

	patch := receivedPatch(t, r, []byte{0x1, 0x2})

	raw, ok := patch.Body.([]byte)
	if !ok || len(raw) != 2 {
		t.Errorf("body = %v, want raw bytes", patch.Body)
	}
}

func TestReceiveHTTP_MalformedJSONAborts(t *testing.T) {
	r := httptest.NewRequest("POST", "/users", nil)
	r.Header.Set("Content-Type", "application/json")

	req := domain.NewNormalizedRequest(&RawRequest{HTTP: r, Body: []byte(`{"broken`)})
	_, err := receiveHTTP(context.Background(), req)

	abort, ok := domain.AsAbort(err)
	if !ok {
		t.Fatalf("err = %v, want abort", err)
	}
	if abort.Response.Status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", abort.Response.Status)
	}
}

func TestSendHTTP(t *testing.T) {
	req := domain.NewNormalizedRequest(nil)

	t.Run("structured body encodes as JSON", func(t *testing.T) {
		resp := domain.NewNormalizedResponse(201, map[string]any{"id": 7})
		out, err := sendHTTP(context.Background(), req, resp)
		if err != nil {
			t.Fatalf("sendHTTP: %v", err)
		}
		wire := out.(*Response)
		if wire.Status != 201 {
			t.Errorf("status = %d", wire.Status)
		}
		if wire.Headers.Get("Content-Type") != "application/json" {
			t.Error("missing json content type")
		}
		var decoded map[string]any
		if err := json.Unmarshal(wire.Body, &decoded); err != nil || decoded["id"].(float64) != 7 {
			t.Errorf("body = %s", wire.Body)
		}
	})

	t.Run("string body passes through", func(t *testing.T) {
		resp := domain.NewNormalizedResponse(200, "pong")
		out, err := sendHTTP(context.Background(), req, resp)
		if err != nil {
			t.Fatalf("sendHTTP: %v", err)
		}
		wire := out.(*Response)
		if string(wire.Body) != "pong" {
			t.Errorf("body = %s", wire.Body)
		}
		if wire.Headers.Get("Content-Type") != "" {
			t.Error("content type forced for string body")
		}
	})

	t.Run("zero status defaults to 200", func(t *testing.T) {
		out, err := sendHTTP(context.Background(), req, &domain.NormalizedResponse{})
		if err != nil {
			t.Fatalf("sendHTTP: %v", err)
		}
		if out.(*Response).Status != http.StatusOK {
			t.Errorf("status = %d, want 200", out.(*Response).Status)
		}
	})

	t.Run("cookies serialized", func(t *testing.T) {
		resp := domain.NewNormalizedResponse(200, nil)
		resp.Cookies = []domain.SetCookie{{Name: "sid", Value: "s1", Path: "/", HTTPOnly: true}}
		out, err := sendHTTP(context.Background(), req, resp)
		if err != nil {
			t.Fatalf("sendHTTP: %v", err)
		}
		cookies := out.(*Response).Cookies
		if len(cookies) != 1 || cookies[0].Name != "sid" || !cookies[0].HttpOnly {
			t.Errorf("cookies = %+v", cookies)
		}
	})
}

func TestParseQueryOrdered_Escapes(t *testing.T) {
	params := domain.NewSearchParams()
	if err := parseQueryOrdered("q=hello%20world&flag", params); err != nil {
		t.Fatalf("parseQueryOrdered: %v", err)
	}
	if params.Get("q") != "hello world" {
		t.Errorf("q = %q", params.Get("q"))
	}
	if params.Values("flag") == nil {
		t.Error("bare key dropped")
	}

	if err := parseQueryOrdered("bad=%zz", domain.NewSearchParams()); err == nil {
		t.Error("expected error for invalid escape")
	}
}
