package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestAbort_Error(t *testing.T) {
	tests := []struct {
		name     string
		abort    *Abort
		expected string
	}{
		{
			name:     "status only",
			abort:    NewAbort(401, "Unauthorized"),
			expected: "pipeline abort (status 401)",
		},
		{
			name:     "with label",
			abort:    AbortForbidden(nil).WithLabel("auth_denied"),
			expected: "pipeline abort auth_denied (status 403)",
		},
		{
			name:     "no response",
			abort:    &Abort{},
			expected: "pipeline abort (status 0)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.abort.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAsAbort(t *testing.T) {
	abort := AbortUnauthorized("denied").WithCause(errors.New("token expired"))
	wrapped := fmt.Errorf("normalize auth: %w", abort)

	got, ok := AsAbort(wrapped)
	if !ok {
		t.Fatal("AsAbort failed to find abort in wrapped chain")
	}
	if got.Response.Status != 401 {
		t.Errorf("Status = %d, want 401", got.Response.Status)
	}
	if got.Unwrap() == nil {
		t.Error("Unwrap() = nil, want cause")
	}

	if _, ok := AsAbort(errors.New("plain")); ok {
		t.Error("AsAbort matched a non-abort error")
	}
}

func TestCORSPolicy_Merge_LaterWins(t *testing.T) {
	no := false
	yes := true
	maxAge := 120

	class := &CORSPolicy{AllowCredentials: &no}
	field := &CORSPolicy{AllowCredentials: &yes, MaxAge: &maxAge}

	merged := class.Merge(field)

	if merged.AllowCredentials == nil || !*merged.AllowCredentials {
		t.Error("AllowCredentials: later contributor did not win")
	}
	if merged.MaxAge == nil || *merged.MaxAge != 120 {
		t.Error("MaxAge not taken from later contributor")
	}
}

func TestCORSPolicy_Merge_NilNeverOverrides(t *testing.T) {
	yes := true
	base := &CORSPolicy{Origins: []string{"https://a.example"}, AllowCredentials: &yes}

	merged := base.Merge(&CORSPolicy{AllowHeaders: []string{"X-Token"}})

	if len(merged.Origins) != 1 {
		t.Error("nil Origins field overrode a set value")
	}
	if merged.AllowCredentials == nil || !*merged.AllowCredentials {
		t.Error("nil AllowCredentials field overrode a set value")
	}
	if len(merged.AllowHeaders) != 1 || merged.AllowHeaders[0] != "X-Token" {
		t.Error("set AllowHeaders field was not merged")
	}
}

func TestCORSPolicy_Merge_NilReceivers(t *testing.T) {
	var p *CORSPolicy
	if got := p.Merge(nil); !got.IsZero() {
		t.Error("nil.Merge(nil) not zero")
	}
	merged := p.Merge(&CORSPolicy{Origins: []string{"*"}})
	if merged.IsZero() {
		t.Error("nil.Merge(policy) lost the policy")
	}
}
