// Package quota defines the typed resource catalog: each resource id maps to
// a backing model, the credential tier allowed to serve it, and the three
// per-credential quota axes (requests per minute, tokens per minute,
// requests per day).
package quota

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/distill/internal/validate"
)

// Window is the length of the per-minute quota window.
const Window = time.Minute

// DailyCooldown is the wait reported once a credential exhausts its daily
// request allowance for a resource.
const DailyCooldown = time.Hour

// Tier restricts which credentials may serve which resources.
type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// ParseTier converts a tier name into a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFree:
		return TierFree, nil
	case TierPaid:
		return TierPaid, nil
	default:
		return "", fmt.Errorf("unknown tier %q (expected free or paid)", s)
	}
}

// Limits are the quota axes enforced per credential and resource.
type Limits struct {
	RPM int `json:"rpm" yaml:"rpm" validate:"gt=0"`
	TPM int `json:"tpm" yaml:"tpm" validate:"gt=0"`
	RPD int `json:"rpd" yaml:"rpd" validate:"gt=0"`
}

// Profile describes one schedulable resource.
type Profile struct {
	ID       string `json:"id" yaml:"id" validate:"required"`
	Model    string `json:"model" yaml:"model" validate:"required"`
	Provider string `json:"provider" yaml:"provider" validate:"required"`
	Tier     Tier   `json:"tier" yaml:"tier" validate:"required,oneof=free paid"`
	Display  string `json:"display,omitempty" yaml:"display,omitempty"`
	Limits   Limits `json:"limits" yaml:"limits"`
}

// Catalog is an immutable, validated set of profiles keyed by resource id.
type Catalog struct {
	profiles map[string]Profile
	order    []string
}

// NewCatalog validates the profiles and builds a catalog. Duplicate ids are
// rejected.
func NewCatalog(profiles ...Profile) (*Catalog, error) {
	c := &Catalog{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if err := validate.Struct(p); err != nil {
			return nil, fmt.Errorf("resource %q: %w", p.ID, err)
		}
		if _, dup := c.profiles[p.ID]; dup {
			return nil, fmt.Errorf("resource %q defined twice", p.ID)
		}
		c.profiles[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c, nil
}

// Lookup returns the profile for a resource id.
func (c *Catalog) Lookup(id string) (Profile, bool) {
	p, ok := c.profiles[id]
	return p, ok
}

// Profiles returns every profile in definition order.
func (c *Catalog) Profiles() []Profile {
	out := make([]Profile, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.profiles[id])
	}
	return out
}

// IDs returns the sorted resource ids.
func (c *Catalog) IDs() []string {
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}

// Len returns the number of profiles.
func (c *Catalog) Len() int {
	return len(c.order)
}

// Merge returns a new catalog where overrides replace profiles with the same
// id and new ids are appended.
func (c *Catalog) Merge(overrides []Profile) (*Catalog, error) {
	merged := c.Profiles()
	index := make(map[string]int, len(merged))
	for i, p := range merged {
		index[p.ID] = i
	}
	for _, o := range overrides {
		if i, ok := index[o.ID]; ok {
			merged[i] = o
			continue
		}
		index[o.ID] = len(merged)
		merged = append(merged, o)
	}
	return NewCatalog(merged...)
}

type overrideFile struct {
	Resources []Profile `yaml:"resources"`
}

// LoadFile reads resource overrides from a YAML file of the form
//
//	resources:
//	  - id: gemini-2.5-flash-free
//	    model: gemini-2.5-flash
//	    provider: gemini
//	    tier: free
//	    limits: {rpm: 5, tpm: 250000, rpd: 250}
func LoadFile(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read resource file: %w", err)
	}
	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse resource file: %w", err)
	}
	for i := range f.Resources {
		if f.Resources[i].Provider == "" {
			f.Resources[i].Provider = ProviderGemini
		}
	}
	return f.Resources, nil
}
