package model

import (
	"context"
	"strings"
	"testing"
)

func TestRequestContext_Validate_requiresSubjectAndTenant(t *testing.T) {
	tests := []struct {
		name    string
		rc      *RequestContext
		missing []string
	}{
		{"complete", &RequestContext{SubjectID: "u-7", TenantID: "acme"}, nil},
		{"no subject", &RequestContext{TenantID: "acme"}, []string{"SubjectID"}},
		{"no tenant", &RequestContext{SubjectID: "u-7"}, []string{"TenantID"}},
		{"empty", &RequestContext{}, []string{"SubjectID", "TenantID"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rc.Validate()
			if len(tt.missing) == 0 {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			// the joined error names every missing field
			for _, field := range tt.missing {
				if !strings.Contains(err.Error(), field) {
					t.Errorf("Validate() = %q, want mention of %s", err, field)
				}
			}
		})
	}
}

func TestRequestContext_HasRole(t *testing.T) {
	rc := &RequestContext{Roles: []string{"report_user", "report_manager"}}
	if !rc.HasRole("report_user") {
		t.Error("HasRole(report_user) = false, want true")
	}
	if rc.HasRole("report_admin") {
		t.Error("HasRole(report_admin) = true, want false")
	}
	if (&RequestContext{}).HasRole("report_user") {
		t.Error("HasRole on an identity without roles = true, want false")
	}
}

func TestRequestContext_carriesIdentityThroughContext(t *testing.T) {
	ctx := WithRequestContext(context.Background(), &RequestContext{
		SubjectID:     "u-7",
		Email:         "u7@acme.example.com",
		TenantID:      "acme",
		Roles:         []string{"report_user"},
		BearerToken:   "tok-fwd-1",
		CorrelationID: "corr-1",
	})

	got := RequestContextFrom(ctx)
	if got == nil {
		t.Fatal("RequestContextFrom = nil, want attached identity")
	}
	if got.SubjectID != "u-7" {
		t.Errorf("SubjectID = %q, want %q", got.SubjectID, "u-7")
	}
	if got.TenantID != "acme" {
		t.Errorf("TenantID = %q, want %q", got.TenantID, "acme")
	}
	if got.BearerToken != "tok-fwd-1" {
		t.Errorf("BearerToken = %q, want %q", got.BearerToken, "tok-fwd-1")
	}
	if !got.HasRole("report_user") {
		t.Error("roles lost on the way through the context")
	}
}

func TestRequestContextFrom_missing(t *testing.T) {
	if got := RequestContextFrom(context.Background()); got != nil {
		t.Errorf("RequestContextFrom(bare context) = %v, want nil", got)
	}
}

func TestMustRequestContext_returnsAttachedIdentity(t *testing.T) {
	rctx := &RequestContext{SubjectID: "u-7", TenantID: "acme"}
	ctx := WithRequestContext(context.Background(), rctx)
	if got := MustRequestContext(ctx); got != rctx {
		t.Errorf("MustRequestContext() = %v, want %v", got, rctx)
	}
}

func TestMustRequestContext_panicsWithoutIdentity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustRequestContext on a bare context did not panic")
		}
	}()
	MustRequestContext(context.Background())
}
