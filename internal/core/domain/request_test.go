package domain

import (
	"net/http"
	"testing"
)

func TestNormalizedRequest_Apply_ShallowMerge(t *testing.T) {
	req := NewNormalizedRequest("raw")

	h1 := http.Header{}
	h1.Set("X-First", "1")

	req.Apply(&RequestPatch{Headers: h1})
	req.Apply(&RequestPatch{Body: "second-body"})

	if got := req.Headers.Get("X-First"); got != "1" {
		t.Errorf("Headers.Get(X-First) = %q, want %q", got, "1")
	}
	if req.Body != "second-body" {
		t.Errorf("Body = %v, want second-body", req.Body)
	}
	if req.Method != "" || req.Path != "" {
		t.Errorf("untouched fields changed: method=%q path=%q", req.Method, req.Path)
	}
}

func TestNormalizedRequest_Apply_LaterFieldWins(t *testing.T) {
	req := NewNormalizedRequest(nil)

	req.Apply(&RequestPatch{Body: "one"})
	req.Apply(&RequestPatch{Body: "two"})

	if req.Body != "two" {
		t.Errorf("Body = %v, want two", req.Body)
	}
}

func TestNormalizedRequest_Apply_PathFinalization(t *testing.T) {
	req := NewNormalizedRequest(nil)

	if set := req.Apply(&RequestPatch{Method: "GET"}); set {
		t.Error("patch without path reported path finalization")
	}
	if set := req.Apply(&RequestPatch{Path: "/users/42"}); !set {
		t.Error("first path assignment not reported as finalization")
	}
	if set := req.Apply(&RequestPatch{Path: "/users/43"}); set {
		t.Error("second path assignment reported as finalization")
	}
	if req.Path != "/users/43" {
		t.Errorf("Path = %q, want /users/43", req.Path)
	}
}

func TestNormalizedRequest_Apply_Nil(t *testing.T) {
	req := NewNormalizedRequest(nil)
	if set := req.Apply(nil); set {
		t.Error("nil patch reported path finalization")
	}
}

func TestSearchParams_Order(t *testing.T) {
	p := NewSearchParams()
	p.Add("a", "1")
	p.Add("b", "2")
	p.Add("a", "3")

	if got := p.Get("a"); got != "1" {
		t.Errorf("Get(a) = %q, want first value 1", got)
	}
	if got := p.Values("a"); len(got) != 2 || got[0] != "1" || got[1] != "3" {
		t.Errorf("Values(a) = %v, want [1 3]", got)
	}

	var order []string
	p.Each(func(k, v string) { order = append(order, k+"="+v) })
	want := []string{"a=1", "b=2", "a=3"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("Each order = %v, want %v", order, want)
		}
	}
}
