// Package keypool schedules generation requests across a pool of API
// credentials. A credential is checked out of the rotation while a request
// is in flight and returned once its usage has been recorded, so pool
// membership doubles as the per-credential mutex.
package keypool

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"github.com/jmylchreest/distill/internal/validate"
	"github.com/jmylchreest/distill/pkg/quota"
)

// Credential is one API key and the tier it is entitled to.
type Credential struct {
	Name      string     `json:"name" yaml:"name" validate:"required"`
	Secret    string     `json:"-" yaml:"secret,omitempty"`
	SecretEnv string     `json:"-" yaml:"secret_env,omitempty"`
	Tier      quota.Tier `json:"tier" yaml:"tier" validate:"required,oneof=free paid"`
	Priority  int        `json:"priority" yaml:"priority"`

	id string
}

// ID is the stable usage key for the credential: the hex sha256 of its secret.
func (c *Credential) ID() string {
	if c.id == "" {
		sum := sha256.Sum256([]byte(c.Secret))
		c.id = hex.EncodeToString(sum[:])
	}
	return c.id
}

// Masked returns the secret with all but the last four characters hidden.
func (c *Credential) Masked() string {
	if len(c.Secret) <= 4 {
		return "****"
	}
	return "****" + c.Secret[len(c.Secret)-4:]
}

func (c *Credential) String() string {
	return fmt.Sprintf("%s(%s)", c.Name, c.Tier)
}

// resolve fills Secret from SecretEnv and validates the credential.
func (c *Credential) resolve() error {
	if c.Secret == "" && c.SecretEnv != "" {
		c.Secret = os.Getenv(c.SecretEnv)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("credential %q: %w", c.Name, err)
	}
	if c.Secret == "" {
		return fmt.Errorf("credential %q: secret is empty", c.Name)
	}
	c.id = ""
	return nil
}

// sortByPriority orders credentials by ascending priority, then name.
func sortByPriority(creds []Credential) {
	sort.SliceStable(creds, func(i, j int) bool {
		if creds[i].Priority != creds[j].Priority {
			return creds[i].Priority < creds[j].Priority
		}
		return creds[i].Name < creds[j].Name
	})
}
