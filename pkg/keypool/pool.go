package keypool

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jmylchreest/distill/internal/logger"
	"github.com/jmylchreest/distill/pkg/quota"
	"github.com/jmylchreest/distill/pkg/usage"
)

var (
	// ErrTooLarge means the request exceeds the resource's absolute
	// tokens-per-minute ceiling; no credential can ever serve it.
	ErrTooLarge = errors.New("request exceeds resource token capacity")

	// ErrUnknownResource means the resource id is not in the catalog.
	ErrUnknownResource = errors.New("unknown resource")
)

const (
	// DefaultCooldown is the penalty applied by a non-fatal Fail.
	DefaultCooldown = 60 * time.Second

	// DefaultBusyWait is reported when every matching credential is checked out.
	DefaultBusyWait = 5 * time.Second
)

// Grant is the result of Acquire. Exactly one of these holds:
// Credential is set (admitted); Wait is positive (retry later);
// both are zero (no credential of the required tier exists).
type Grant struct {
	Credential *Credential
	Wait       time.Duration
	Resource   quota.Profile
}

// Admitted reports whether a credential was checked out.
func (g Grant) Admitted() bool {
	return g.Credential != nil
}

// Stats is a snapshot of pool membership.
type Stats struct {
	Available  int `json:"available"`
	CheckedOut int `json:"checked_out"`
	Cooling    int `json:"cooling"`
	Dead       int `json:"dead"`
}

// Option configures a Pool.
type Option func(*Pool)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// WithCooldown sets the non-fatal failure penalty.
func WithCooldown(d time.Duration) Option {
	return func(p *Pool) {
		p.cooldown = d
	}
}

// WithBusyWait sets the wait reported when all matching credentials are busy.
func WithBusyWait(d time.Duration) Option {
	return func(p *Pool) {
		p.busyWait = d
	}
}

// WithoutShuffle keeps the initial rotation in priority order.
func WithoutShuffle() Option {
	return func(p *Pool) {
		p.shuffle = false
	}
}

// Pool hands out credentials subject to per-resource quotas.
type Pool struct {
	mu         sync.Mutex
	catalog    *quota.Catalog
	store      usage.Store
	known      map[string]*Credential
	rotation   []*Credential
	checkedOut map[string]*Credential
	cooling    map[string]time.Time
	dead       map[string]*Credential

	now      func() time.Time
	cooldown time.Duration
	busyWait time.Duration
	shuffle  bool
}

// New builds a pool over creds. Credentials are validated; duplicates by
// secret are dropped.
func New(catalog *quota.Catalog, store usage.Store, creds []Credential, opts ...Option) (*Pool, error) {
	if catalog == nil {
		return nil, fmt.Errorf("keypool: catalog is required")
	}
	if store == nil {
		return nil, fmt.Errorf("keypool: usage store is required")
	}

	p := &Pool{
		catalog:    catalog,
		store:      store,
		known:      make(map[string]*Credential),
		checkedOut: make(map[string]*Credential),
		cooling:    make(map[string]time.Time),
		dead:       make(map[string]*Credential),
		now:        time.Now,
		cooldown:   DefaultCooldown,
		busyWait:   DefaultBusyWait,
		shuffle:    true,
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := p.Reload(creds); err != nil {
		return nil, err
	}
	return p, nil
}

// Acquire checks out a credential able to serve estimatedTokens on
// resourceID right now. The store lookup happens under the pool lock so two
// callers can never check out the same credential.
func (p *Pool) Acquire(ctx context.Context, resourceID string, estimatedTokens int) (Grant, error) {
	profile, ok := p.catalog.Lookup(resourceID)
	if !ok {
		return Grant{}, fmt.Errorf("%w: %s", ErrUnknownResource, resourceID)
	}
	grant := Grant{Resource: profile}

	if estimatedTokens > profile.Limits.TPM {
		return grant, fmt.Errorf("%w: %d tokens > %d tpm on %s", ErrTooLarge, estimatedTokens, profile.Limits.TPM, resourceID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.reclaimLocked(now)

	var best time.Duration
	for i, cred := range p.rotation {
		if cred.Tier != profile.Tier {
			continue
		}

		counter, _, err := p.store.Get(ctx, cred.ID(), resourceID)
		if err != nil {
			return grant, fmt.Errorf("read usage for %s: %w", cred.Name, err)
		}

		admit, wait := counter.Admit(now, profile.Limits, estimatedTokens)
		if admit {
			p.rotation = append(p.rotation[:i:i], p.rotation[i+1:]...)
			p.checkedOut[cred.ID()] = cred
			logger.Debug("keypool checkout",
				"credential", cred.Name,
				"resource", resourceID,
				"estimated_tokens", estimatedTokens,
				"in_window", counter.RequestsInWindow)
			grant.Credential = cred
			return grant, nil
		}
		best = minPositive(best, wait)
	}

	// Cooling credentials are out of rotation but may free up before any
	// rate-limited one does.
	var live int
	for id, cred := range p.known {
		if cred.Tier != profile.Tier {
			continue
		}
		if _, gone := p.dead[id]; gone {
			continue
		}
		live++
		if until, ok := p.cooling[id]; ok {
			best = minPositive(best, until.Sub(now))
		}
	}

	switch {
	case best > 0:
		grant.Wait = best
	case live == 0:
		logger.Debug("keypool no credential for tier", "resource", resourceID, "tier", profile.Tier)
	default:
		grant.Wait = p.busyWait
	}
	return grant, nil
}

// Release records tokensUsed against the credential for resourceID and
// returns it to the rotation tail. The credential is returned even when the
// usage write fails.
func (p *Pool) Release(ctx context.Context, cred *Credential, resourceID string, tokensUsed int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	counter, found, err := p.store.Get(ctx, cred.ID(), resourceID)
	if err == nil {
		if !found {
			counter = usage.Counter{CredentialID: cred.ID(), ResourceID: resourceID}
		}
		counter.Record(now, tokensUsed)
		err = p.store.Upsert(ctx, counter)
	}

	p.returnLocked(cred)

	if err != nil {
		return fmt.Errorf("record usage for %s: %w", cred.Name, err)
	}
	logger.Debug("keypool release",
		"credential", cred.Name,
		"resource", resourceID,
		"tokens", tokensUsed,
		"requests_in_window", counter.RequestsInWindow,
		"requests_today", counter.RequestsToday)
	return nil
}

// Fail takes a checked-out credential out of service. A non-fatal failure
// cools it down for the configured period; a fatal one kills it for the
// lifetime of the pool.
func (p *Pool) Fail(cred *Credential, fatal bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := cred.ID()
	delete(p.checkedOut, id)
	p.removeFromRotationLocked(id)

	if fatal {
		delete(p.cooling, id)
		if _, ok := p.known[id]; !ok {
			return
		}
		p.dead[id] = cred
		logger.Warn("keypool credential disabled", "credential", cred.Name)
		return
	}

	if _, ok := p.known[id]; !ok {
		return
	}
	until := p.now().Add(p.cooldown)
	p.cooling[id] = until
	logger.Debug("keypool cooldown", "credential", cred.Name, "until", until)
}

// Return gives a checked-out credential back without touching usage or
// cooldown state.
func (p *Pool) Return(cred *Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.returnLocked(cred)
}

// Reload replaces the credential set. Credentials that stay keep their
// cooldown, dead and checkout state; removed ones are forgotten and are not
// returned to the rotation when their checkout ends.
func (p *Pool) Reload(creds []Credential) error {
	next := make(map[string]*Credential, len(creds))
	ordered := make([]*Credential, 0, len(creds))

	sorted := append([]Credential(nil), creds...)
	sortByPriority(sorted)
	for i := range sorted {
		c := sorted[i]
		if err := c.resolve(); err != nil {
			return err
		}
		if _, dup := next[c.ID()]; dup {
			logger.Warn("keypool duplicate credential ignored", "credential", c.Name)
			continue
		}
		cred := &c
		next[cred.ID()] = cred
		ordered = append(ordered, cred)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rotation := make([]*Credential, 0, len(ordered))
	for _, cred := range ordered {
		id := cred.ID()
		if _, busy := p.checkedOut[id]; busy {
			p.checkedOut[id] = cred
			continue
		}
		if _, gone := p.dead[id]; gone {
			continue
		}
		if _, cooling := p.cooling[id]; cooling {
			continue
		}
		rotation = append(rotation, cred)
	}
	if p.shuffle {
		rand.Shuffle(len(rotation), func(i, j int) {
			rotation[i], rotation[j] = rotation[j], rotation[i]
		})
	}

	for id := range p.cooling {
		if _, ok := next[id]; !ok {
			delete(p.cooling, id)
		}
	}
	for id := range p.dead {
		if _, ok := next[id]; !ok {
			delete(p.dead, id)
		}
	}

	p.known = next
	p.rotation = rotation
	logger.Debug("keypool loaded", "credentials", len(next), "available", len(rotation))
	return nil
}

// Stats returns a snapshot of pool membership.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Available:  len(p.rotation),
		CheckedOut: len(p.checkedOut),
		Cooling:    len(p.cooling),
		Dead:       len(p.dead),
	}
}

// Store returns the usage store backing the pool.
func (p *Pool) Store() usage.Store {
	return p.store
}

// Catalog returns the resource catalog.
func (p *Pool) Catalog() *quota.Catalog {
	return p.catalog
}

func (p *Pool) returnLocked(cred *Credential) {
	id := cred.ID()
	delete(p.checkedOut, id)
	if _, ok := p.known[id]; !ok {
		return
	}
	if _, gone := p.dead[id]; gone {
		return
	}
	if _, cooling := p.cooling[id]; cooling {
		return
	}
	for _, c := range p.rotation {
		if c.ID() == id {
			return
		}
	}
	p.rotation = append(p.rotation, p.known[id])
}

// reclaimLocked moves credentials whose cooldown has expired back into the
// rotation.
func (p *Pool) reclaimLocked(now time.Time) {
	for id, until := range p.cooling {
		if now.Before(until) {
			continue
		}
		delete(p.cooling, id)
		if cred, ok := p.known[id]; ok {
			if _, busy := p.checkedOut[id]; !busy {
				p.rotation = append(p.rotation, cred)
			}
		}
	}
}

func (p *Pool) removeFromRotationLocked(id string) {
	for i, c := range p.rotation {
		if c.ID() == id {
			p.rotation = append(p.rotation[:i:i], p.rotation[i+1:]...)
			return
		}
	}
}

func minPositive(cur, d time.Duration) time.Duration {
	if d <= 0 {
		return cur
	}
	if cur == 0 || d < cur {
		return d
	}
	return cur
}
