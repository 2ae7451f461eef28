package quota

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	if c.Len() != len(builtin) {
		t.Fatalf("expected %d profiles, got %d", len(builtin), c.Len())
	}

	p, ok := c.Lookup("gemini-2.5-flash-lite-free")
	if !ok {
		t.Fatal("expected default resource in catalog")
	}
	if p.Model != "gemini-2.5-flash-lite" {
		t.Errorf("expected model gemini-2.5-flash-lite, got %s", p.Model)
	}
	if p.Tier != TierFree {
		t.Errorf("expected free tier, got %s", p.Tier)
	}
	if p.Limits != (Limits{RPM: 10, TPM: 250_000, RPD: 10_000}) {
		t.Errorf("unexpected limits %+v", p.Limits)
	}
	if p.Provider != ProviderGemini {
		t.Errorf("expected gemini provider, got %s", p.Provider)
	}

	if _, ok := c.Lookup(DefaultResource); !ok {
		t.Errorf("DefaultResource %q missing from catalog", DefaultResource)
	}
}

func TestNewCatalog_Rejects(t *testing.T) {
	valid := Profile{ID: "x", Model: "m", Provider: "openai", Tier: TierPaid, Limits: Limits{RPM: 1, TPM: 1, RPD: 1}}

	tests := []struct {
		name     string
		profiles []Profile
		wantErr  string
	}{
		{
			name:     "bad tier",
			profiles: []Profile{{ID: "x", Model: "m", Provider: "p", Tier: "gold", Limits: Limits{RPM: 1, TPM: 1, RPD: 1}}},
			wantErr:  "one of",
		},
		{
			name:     "zero limit",
			profiles: []Profile{{ID: "x", Model: "m", Provider: "p", Tier: TierFree, Limits: Limits{RPM: 0, TPM: 1, RPD: 1}}},
			wantErr:  "RPM",
		},
		{
			name:     "missing model",
			profiles: []Profile{{ID: "x", Provider: "p", Tier: TierFree, Limits: Limits{RPM: 1, TPM: 1, RPD: 1}}},
			wantErr:  "Model",
		},
		{
			name:     "duplicate",
			profiles: []Profile{valid, valid},
			wantErr:  "defined twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.profiles...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCatalog_Merge(t *testing.T) {
	c := DefaultCatalog()

	merged, err := c.Merge([]Profile{
		{ID: "gemma-3-27b", Model: "gemma-3-27b-it", Provider: ProviderGemini, Tier: TierFree, Limits: Limits{RPM: 60, TPM: 30_000, RPD: 14_400}},
		{ID: "local-llama", Model: "llama3.2", Provider: "ollama", Tier: TierFree, Limits: Limits{RPM: 600, TPM: 10_000_000, RPD: 1_000_000}},
	})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if merged.Len() != c.Len()+1 {
		t.Errorf("expected %d profiles, got %d", c.Len()+1, merged.Len())
	}
	p, _ := merged.Lookup("gemma-3-27b")
	if p.Limits.RPM != 60 {
		t.Errorf("expected override rpm 60, got %d", p.Limits.RPM)
	}
	orig, _ := c.Lookup("gemma-3-27b")
	if orig.Limits.RPM != 30 {
		t.Errorf("merge must not mutate the source catalog, got rpm %d", orig.Limits.RPM)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resources.yaml")
	content := `resources:
  - id: gemini-2.5-flash-free
    model: gemini-2.5-flash
    tier: free
    limits: {rpm: 5, tpm: 250000, rpd: 250}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	profiles, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(profiles))
	}
	if profiles[0].Provider != ProviderGemini {
		t.Errorf("expected provider to default to gemini, got %q", profiles[0].Provider)
	}
	if profiles[0].Limits.RPD != 250 {
		t.Errorf("expected rpd 250, got %d", profiles[0].Limits.RPD)
	}
}

func TestParseTier(t *testing.T) {
	if tier, err := ParseTier(" Paid "); err != nil || tier != TierPaid {
		t.Errorf("ParseTier(Paid) = %v, %v", tier, err)
	}
	if _, err := ParseTier("enterprise"); err == nil {
		t.Error("expected error for unknown tier")
	}
}
