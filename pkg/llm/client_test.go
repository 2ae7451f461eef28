package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jmylchreest/distill/pkg/keypool"
	"github.com/jmylchreest/distill/pkg/quota"
	"github.com/jmylchreest/distill/pkg/tokens"
	"github.com/jmylchreest/distill/pkg/usage"
)

type fakeProvider struct {
	mu     sync.Mutex
	model  string
	key    string
	calls  int
	reply  func(key string) (*Response, error)
	closed bool
}

func (f *fakeProvider) Execute(_ context.Context, _ Request) (*Response, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.reply(f.key)
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return f.model }
func (f *fakeProvider) Close() error {
	f.closed = true
	return nil
}

type harness struct {
	pool      *keypool.Pool
	client    *Client
	stats     *CallStats
	providers map[string]*fakeProvider
}

func newHarness(t *testing.T, reply func(key string) (*Response, error), creds ...keypool.Credential) *harness {
	t.Helper()
	catalog, err := quota.NewCatalog(
		quota.Profile{ID: "fake-free", Model: "fake-model", Provider: "fake", Tier: quota.TierFree, Limits: quota.Limits{RPM: 10, TPM: 1000, RPD: 100}},
		quota.Profile{ID: "fake-paid", Model: "fake-model", Provider: "fake", Tier: quota.TierPaid, Limits: quota.Limits{RPM: 10, TPM: 1000, RPD: 100}},
	)
	if err != nil {
		t.Fatal(err)
	}
	pool, err := keypool.New(catalog, usage.NewMemoryStore(), creds, keypool.WithoutShuffle())
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{pool: pool, stats: NewCallStats(), providers: map[string]*fakeProvider{}}
	factory := func(name string, cfg ProviderConfig) (Provider, error) {
		if name != "fake" {
			t.Fatalf("unexpected provider %q", name)
		}
		p := &fakeProvider{model: cfg.Model, key: cfg.APIKey, reply: reply}
		h.providers[cfg.APIKey] = p
		return p, nil
	}
	h.client = NewClient(pool, DefaultClientConfig(), WithFactory(factory), WithObserver(h.stats))
	return h
}

func cred(name string) keypool.Credential {
	return keypool.Credential{Name: name, Secret: "sk-" + name, Tier: quota.TierFree}
}

func ok(text string) func(string) (*Response, error) {
	return func(string) (*Response, error) {
		return &Response{Content: text}, nil
	}
}

func TestGenerate_Success(t *testing.T) {
	h := newHarness(t, ok(`{"ok":true}`), cred("a"))
	ctx := context.Background()
	prompt := "extract these articles"

	out := h.client.Generate(ctx, prompt, "fake-free")
	if out.Kind != KindSuccess {
		t.Fatalf("expected success, got %s (%s)", out.Kind, out.Message)
	}
	if out.Text != `{"ok":true}` {
		t.Errorf("unexpected text %q", out.Text)
	}
	if out.Credential != "a" {
		t.Errorf("expected credential a, got %q", out.Credential)
	}

	want := tokens.Estimate(prompt) + tokens.Estimate(out.Text)
	if out.Tokens != want {
		t.Errorf("expected %d tokens, got %d", want, out.Tokens)
	}

	c := cred("a")
	counter, found, err := h.pool.Store().Get(ctx, c.ID(), "fake-free")
	if err != nil || !found {
		t.Fatalf("expected stored counter, found=%v err=%v", found, err)
	}
	if counter.RequestsInWindow != 1 || counter.TokensInWindow != want {
		t.Errorf("unexpected counter %+v", counter)
	}
	if s := h.pool.Stats(); s.Available != 1 || s.CheckedOut != 0 {
		t.Errorf("credential should be back in rotation, got %+v", s)
	}
	if h.stats.Count(KindSuccess) != 1 {
		t.Errorf("expected observer to see one success")
	}
}

func TestGenerate_ReusesProvider(t *testing.T) {
	h := newHarness(t, ok("{}"), cred("a"))
	for i := 0; i < 3; i++ {
		if out := h.client.Generate(context.Background(), "p", "fake-free"); !out.OK() {
			t.Fatalf("call %d: %s", i, out.Kind)
		}
	}
	if len(h.providers) != 1 {
		t.Errorf("expected one cached provider, got %d", len(h.providers))
	}
	if h.providers["sk-a"].calls != 3 {
		t.Errorf("expected 3 calls on cached provider, got %d", h.providers["sk-a"].calls)
	}
}

func TestGenerate_Outcomes(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  Kind
		wantStats keypool.Stats
	}{
		{
			name:      "rate limited cools credential",
			err:       &StatusError{Provider: "fake", Code: 429, Message: "quota"},
			wantKind:  KindRateLimited,
			wantStats: keypool.Stats{Cooling: 1},
		},
		{
			name:      "unauthorized kills credential",
			err:       &StatusError{Provider: "fake", Code: 401, Message: "bad key"},
			wantKind:  KindServiceError,
			wantStats: keypool.Stats{Dead: 1},
		},
		{
			name:      "forbidden kills credential",
			err:       &StatusError{Provider: "fake", Code: 403, Message: "revoked"},
			wantKind:  KindServiceError,
			wantStats: keypool.Stats{Dead: 1},
		},
		{
			name:      "server error returns credential",
			err:       &StatusError{Provider: "fake", Code: 500, Message: "boom"},
			wantKind:  KindServiceError,
			wantStats: keypool.Stats{Available: 1},
		},
		{
			name:      "empty content returns credential",
			err:       emptyContent("fake", "SAFETY"),
			wantKind:  KindServiceError,
			wantStats: keypool.Stats{Available: 1},
		},
		{
			name:      "transport error returns credential",
			err:       errors.New("connection reset"),
			wantKind:  KindTransportError,
			wantStats: keypool.Stats{Available: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(string) (*Response, error) { return nil, tt.err }, cred("a"))

			out := h.client.Generate(context.Background(), "prompt", "fake-free")
			if out.Kind != tt.wantKind {
				t.Errorf("expected %s, got %s", tt.wantKind, out.Kind)
			}
			if out.Kind == KindRateLimited && out.Wait != 0 {
				t.Errorf("rate limited from backend should rotate immediately, got wait %v", out.Wait)
			}
			if got := h.pool.Stats(); got != tt.wantStats {
				t.Errorf("expected pool stats %+v, got %+v", tt.wantStats, got)
			}
			if h.stats.Count(tt.wantKind) != 1 {
				t.Errorf("expected observer to record %s", tt.wantKind)
			}
		})
	}
}

func TestGenerate_EmptyContentCountsInputTokens(t *testing.T) {
	h := newHarness(t, func(string) (*Response, error) { return nil, emptyContent("fake", "") }, cred("a"))
	prompt := strings.Repeat("x", 250)

	out := h.client.Generate(context.Background(), prompt, "fake-free")
	if out.Kind != KindServiceError {
		t.Fatalf("expected service error, got %s", out.Kind)
	}

	c := cred("a")
	counter, _, _ := h.pool.Store().Get(context.Background(), c.ID(), "fake-free")
	if counter.TokensInWindow != tokens.Estimate(prompt) {
		t.Errorf("expected %d tokens recorded, got %d", tokens.Estimate(prompt), counter.TokensInWindow)
	}
}

func TestGenerate_TooLarge(t *testing.T) {
	h := newHarness(t, ok("{}"), cred("a"))
	out := h.client.Generate(context.Background(), strings.Repeat("x", 5000), "fake-free")
	if out.Kind != KindTooLarge {
		t.Errorf("expected too_large, got %s", out.Kind)
	}
	if len(h.providers) != 0 {
		t.Error("backend should not be called for oversized prompts")
	}
}

func TestGenerate_NoCredential(t *testing.T) {
	h := newHarness(t, ok("{}"), cred("a"))
	out := h.client.Generate(context.Background(), "p", "fake-paid")
	if out.Kind != KindNoCredential {
		t.Errorf("expected no_credential, got %s", out.Kind)
	}
}

func TestGenerate_RotatesAfterRateLimit(t *testing.T) {
	reply := func(key string) (*Response, error) {
		if key == "sk-a" {
			return nil, &StatusError{Provider: "fake", Code: 429}
		}
		return &Response{Content: "{}"}, nil
	}
	h := newHarness(t, reply, cred("a"), cred("b"))

	first := h.client.Generate(context.Background(), "p", "fake-free")
	if first.Kind != KindRateLimited || first.Credential != "a" {
		t.Fatalf("expected a to be rate limited, got %s on %s", first.Kind, first.Credential)
	}
	second := h.client.Generate(context.Background(), "p", "fake-free")
	if second.Kind != KindSuccess || second.Credential != "b" {
		t.Errorf("expected success on b, got %s on %s", second.Kind, second.Credential)
	}
}

func TestGenerate_BusyPoolWaits(t *testing.T) {
	h := newHarness(t, ok("{}"), cred("a"))
	ctx := context.Background()

	grant, err := h.pool.Acquire(ctx, "fake-free", 1)
	if err != nil || !grant.Admitted() {
		t.Fatalf("expected manual checkout, got %+v %v", grant, err)
	}
	defer h.pool.Return(grant.Credential)

	out := h.client.Generate(ctx, "p", "fake-free")
	if out.Kind != KindRateLimited || out.Wait <= 0 {
		t.Errorf("expected rate limited with wait, got %s wait %v", out.Kind, out.Wait)
	}
}

func TestClient_Close(t *testing.T) {
	h := newHarness(t, ok("{}"), cred("a"))
	h.client.Generate(context.Background(), "p", "fake-free")

	if err := h.client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !h.providers["sk-a"].closed {
		t.Error("expected cached provider to be closed")
	}
}

func TestKindString(t *testing.T) {
	if KindTransportError.String() != "transport_error" {
		t.Errorf("unexpected name %q", KindTransportError.String())
	}
	if Kind(42).String() != "kind(42)" {
		t.Errorf("unexpected name %q", Kind(42).String())
	}
}
