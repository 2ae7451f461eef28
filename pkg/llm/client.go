package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jmylchreest/distill/internal/logger"
	"github.com/jmylchreest/distill/pkg/keypool"
	"github.com/jmylchreest/distill/pkg/quota"
	"github.com/jmylchreest/distill/pkg/tokens"
)

// Kind classifies the outcome of one pooled generation call.
type Kind int

const (
	KindSuccess Kind = iota
	KindRateLimited
	KindTooLarge
	KindNoCredential
	KindServiceError
	KindTransportError
)

var kindNames = [...]string{
	KindSuccess:        "success",
	KindRateLimited:    "rate_limited",
	KindTooLarge:       "too_large",
	KindNoCredential:   "no_credential",
	KindServiceError:   "service_error",
	KindTransportError: "transport_error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Outcome is the typed result of Client.Generate.
type Outcome struct {
	Kind       Kind
	Text       string
	Credential string
	Resource   string
	// Wait is how long to back off before retrying a RateLimited outcome.
	// Zero means rotate to another credential immediately.
	Wait    time.Duration
	Message string
	Tokens  int
}

// OK reports whether the call produced text.
func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}

// CredentialPool is the subset of keypool.Pool the client needs.
type CredentialPool interface {
	Acquire(ctx context.Context, resourceID string, estimatedTokens int) (keypool.Grant, error)
	Release(ctx context.Context, cred *keypool.Credential, resourceID string, tokensUsed int) error
	Fail(cred *keypool.Credential, fatal bool)
	Return(cred *keypool.Credential)
}

// ClientConfig tunes the requests the client sends.
type ClientConfig struct {
	System      string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
	Provider    ProviderConfig
}

// DefaultClientConfig returns settings suited to structured extraction.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Temperature: 0.1,
		MaxTokens:   16384,
		JSONMode:    true,
		Provider:    DefaultProviderConfig(),
	}
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithObserver attaches a call observer.
func WithObserver(obs Observer) ClientOption {
	return func(c *Client) {
		c.observer = obs
	}
}

// WithFactory replaces provider construction, mainly for tests.
func WithFactory(f func(name string, cfg ProviderConfig) (Provider, error)) ClientOption {
	return func(c *Client) {
		c.factory = f
	}
}

// Client issues single generation requests using credentials from a pool.
type Client struct {
	pool     CredentialPool
	cfg      ClientConfig
	factory  func(name string, cfg ProviderConfig) (Provider, error)
	observer Observer

	mu        sync.Mutex
	providers map[string]Provider
}

// NewClient creates a pooled client.
func NewClient(pool CredentialPool, cfg ClientConfig, opts ...ClientOption) *Client {
	c := &Client{
		pool:      pool,
		cfg:       cfg,
		factory:   NewProvider,
		providers: make(map[string]Provider),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate sends prompt to the model behind resourceID and maps every
// failure into an Outcome. Credential state is updated according to what the
// failure says about the credential.
func (c *Client) Generate(ctx context.Context, prompt, resourceID string) Outcome {
	start := time.Now()
	est := tokens.Estimate(prompt)
	out := Outcome{Resource: resourceID}

	grant, err := c.pool.Acquire(ctx, resourceID, est)
	switch {
	case errors.Is(err, keypool.ErrTooLarge):
		out.Kind = KindTooLarge
		out.Message = err.Error()
		return c.finish(ctx, out, grant.Resource, nil, start, err)
	case err != nil:
		out.Kind = KindServiceError
		out.Message = err.Error()
		return c.finish(ctx, out, grant.Resource, nil, start, err)
	case grant.Wait > 0:
		out.Kind = KindRateLimited
		out.Wait = grant.Wait
		return c.finish(ctx, out, grant.Resource, nil, start, nil)
	case !grant.Admitted():
		out.Kind = KindNoCredential
		out.Message = fmt.Sprintf("no %s credential configured for %s", grant.Resource.Tier, resourceID)
		return c.finish(ctx, out, grant.Resource, nil, start, nil)
	}

	cred := grant.Credential
	out.Credential = cred.Name

	provider, err := c.provider(grant.Resource, cred)
	if err != nil {
		c.pool.Return(cred)
		out.Kind = KindServiceError
		out.Message = err.Error()
		return c.finish(ctx, out, grant.Resource, nil, start, err)
	}

	req := Request{
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		JSONMode:    c.cfg.JSONMode,
	}
	if c.cfg.System != "" {
		req.Messages = append(req.Messages, Message{Role: RoleSystem, Content: c.cfg.System})
	}
	req.Messages = append(req.Messages, Message{Role: RoleUser, Content: prompt})

	resp, err := provider.Execute(ctx, req)

	// Usage must be recorded even if the caller's context is gone.
	bg := context.WithoutCancel(ctx)

	var statusErr *StatusError
	switch {
	case err == nil:
		out.Kind = KindSuccess
		out.Text = resp.Content
		out.Tokens = est + tokens.Estimate(resp.Content)
		if rerr := c.pool.Release(bg, cred, resourceID, out.Tokens); rerr != nil {
			logger.Warn("llm usage not recorded", "credential", cred.Name, "error", rerr)
		}
	case errors.Is(err, ErrEmptyContent):
		out.Kind = KindServiceError
		out.Message = err.Error()
		out.Tokens = est
		if rerr := c.pool.Release(bg, cred, resourceID, est); rerr != nil {
			logger.Warn("llm usage not recorded", "credential", cred.Name, "error", rerr)
		}
	case errors.As(err, &statusErr) && statusErr.RateLimited():
		c.pool.Fail(cred, false)
		out.Kind = KindRateLimited
		out.Message = statusErr.Message
	case errors.As(err, &statusErr) && statusErr.Revoked():
		c.pool.Fail(cred, true)
		c.forget(grant.Resource, cred)
		out.Kind = KindServiceError
		out.Message = err.Error()
	case errors.As(err, &statusErr):
		c.pool.Return(cred)
		out.Kind = KindServiceError
		out.Message = err.Error()
	default:
		c.pool.Return(cred)
		out.Kind = KindTransportError
		out.Message = err.Error()
	}

	return c.finish(ctx, out, grant.Resource, provider, start, err)
}

// Close releases cached providers that hold resources.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for key, p := range c.providers {
		if closer, ok := p.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		delete(c.providers, key)
	}
	return errors.Join(errs...)
}

func (c *Client) provider(profile quota.Profile, cred *keypool.Credential) (Provider, error) {
	key := providerKey(profile, cred)

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.providers[key]; ok {
		return p, nil
	}

	cfg := c.cfg.Provider
	cfg.APIKey = cred.Secret
	cfg.Model = profile.Model

	p, err := c.factory(profile.Provider, cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", profile.Provider, err)
	}
	c.providers[key] = p
	return p, nil
}

func (c *Client) forget(profile quota.Profile, cred *keypool.Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := providerKey(profile, cred)
	if closer, ok := c.providers[key].(io.Closer); ok {
		_ = closer.Close()
	}
	delete(c.providers, key)
}

func providerKey(profile quota.Profile, cred *keypool.Credential) string {
	return profile.Provider + "|" + profile.Model + "|" + cred.ID()
}

func (c *Client) finish(ctx context.Context, out Outcome, profile quota.Profile, p Provider, start time.Time, err error) Outcome {
	logger.Debug("llm generate",
		"resource", out.Resource,
		"credential", out.Credential,
		"outcome", out.Kind.String(),
		"tokens", out.Tokens,
		"wait", out.Wait,
		"duration", time.Since(start))

	if c.observer != nil {
		ev := CallEvent{
			Provider:   profile.Provider,
			Model:      profile.Model,
			Resource:   out.Resource,
			Credential: out.Credential,
			Kind:       out.Kind,
			Tokens:     out.Tokens,
			Wait:       out.Wait,
			Duration:   time.Since(start),
			Error:      err,
			StartedAt:  start,
		}
		if p != nil {
			ev.Provider = p.Name()
		}
		c.observer.OnCall(ctx, ev)
	}
	return out
}
