// Package llm issues single text-generation requests against pluggable
// backends and, through Client, schedules them over a credential pool.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    Role
	Content string
}

// Request represents a completion request.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	// JSONMode asks the backend for a JSON document when it supports it.
	JSONMode bool
}

// Usage tracks token consumption as reported by the backend.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response represents the result of a completion.
type Response struct {
	Content      string
	FinishReason string
	Usage        Usage
	Model        string
	Duration     time.Duration
}

// Provider is implemented by every generation backend.
type Provider interface {
	// Execute sends a completion request and returns the response.
	Execute(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider identifier (e.g., "gemini", "openai").
	Name() string

	// Model returns the configured model name.
	Model() string
}

// ProviderConfig holds common configuration for providers.
type ProviderConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	Timeout    time.Duration
	UserAgent  string
}

// DefaultProviderConfig returns the defaults used for pooled requests.
// Retries are left to the caller, which rotates credentials between attempts.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		MaxRetries: 0,
		Timeout:    300 * time.Second,
	}
}

// ErrEmptyContent is returned when the backend answered but produced no
// text, e.g. because the candidate was blocked by a safety filter.
var ErrEmptyContent = errors.New("no content generated")

// StatusError is an HTTP-level failure reported by a backend.
type StatusError struct {
	Provider string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Code, e.Message)
}

// RateLimited reports whether the backend rejected the call for quota.
func (e *StatusError) RateLimited() bool {
	return e.Code == http.StatusTooManyRequests
}

// Revoked reports whether the credential itself was rejected.
func (e *StatusError) Revoked() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
}

func emptyContent(provider, reason string) error {
	if reason == "" {
		return fmt.Errorf("%s: %w", provider, ErrEmptyContent)
	}
	return fmt.Errorf("%s: %w (%s)", provider, ErrEmptyContent, reason)
}
