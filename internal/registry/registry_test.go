package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type stubTool struct {
	spec Spec
}

func (s *stubTool) Spec() Spec { return s.spec }
func (s *stubTool) Invoke(ctx context.Context, params map[string]interface{}) (string, error) {
	return "ok", nil
}

func newTestRegistry() *Registry {
	r := New()
	r.Register(&stubTool{spec: Spec{
		Name:        "restart_service",
		Description: "Restart a service",
		Params: map[string]ParamSpec{
			"service":     {Type: "string", Required: true},
			"environment": {Type: "string", Enum: []string{"staging", "production"}},
			"replicas":    {Type: "number"},
			"force":       {Type: "bool"},
		},
	}})
	return r
}

func TestResolve_UnknownTool(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Resolve("nonexistent")
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestResolve_DisabledTool(t *testing.T) {
	r := newTestRegistry()
	if err := r.Apply(&Catalog{Tools: []CatalogEntry{{Name: "restart_service", Disabled: true}}}); err != nil {
		t.Fatalf("apply error: %v", err)
	}
	_, err := r.Resolve("restart_service")
	if !errors.Is(err, ErrToolDisabled) {
		t.Fatalf("expected ErrToolDisabled, got %v", err)
	}
}

func TestCheckParams(t *testing.T) {
	r := newTestRegistry()

	cases := []struct {
		name    string
		params  map[string]interface{}
		wantErr bool
	}{
		{"valid", map[string]interface{}{"service": "api", "environment": "staging", "replicas": 3, "force": true}, false},
		{"minimal", map[string]interface{}{"service": "api"}, false},
		{"missing required", map[string]interface{}{"environment": "staging"}, true},
		{"unknown param", map[string]interface{}{"service": "api", "bogus": "x"}, true},
		{"wrong type", map[string]interface{}{"service": 42}, true},
		{"enum violation", map[string]interface{}{"service": "api", "environment": "qa"}, true},
		{"bool type", map[string]interface{}{"service": "api", "force": "yes"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := r.CheckParams("restart_service", tc.params)
			if tc.wantErr && err == nil {
				t.Errorf("expected error for %v", tc.params)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCatalog_AppliesTimeoutAndDisable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	catalog := `tools:
  - name: restart_service
    timeout_seconds: 120
    disabled: true
`
	if err := os.WriteFile(path, []byte(catalog), 0644); err != nil {
		t.Fatal(err)
	}

	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	r := newTestRegistry()
	if err := r.Apply(cat); err != nil {
		t.Fatalf("apply error: %v", err)
	}

	spec, err := r.SpecOf("restart_service")
	if err != nil {
		t.Fatalf("spec error: %v", err)
	}
	if spec.TimeoutSeconds != 120 {
		t.Errorf("expected timeout override 120, got %d", spec.TimeoutSeconds)
	}
	if !spec.Disabled {
		t.Error("expected tool disabled by catalog")
	}
}

func TestCatalog_UnknownEntryFails(t *testing.T) {
	r := newTestRegistry()
	err := r.Apply(&Catalog{Tools: []CatalogEntry{{Name: "typo_tool"}}})
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool for catalog typo, got %v", err)
	}
}

func TestCredentialContext(t *testing.T) {
	ctx := context.Background()
	if got := CredentialFrom(ctx); got != "" {
		t.Errorf("expected empty credential on bare context, got %q", got)
	}
	ctx = WithCredential(ctx, "s3cret")
	if got := CredentialFrom(ctx); got != "s3cret" {
		t.Errorf("expected credential round-trip, got %q", got)
	}
}
