// Package provider defines the per-backend adapter contract and the
// declarative selector profiles that drive it. Adapters are stateless with
// respect to request data; all mutable state lives in the browser session
// that the session manager owns.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/chatproxy/pkg/automation"
)

// Provider identifies one supported target chat website.
type Provider string

const (
	Gemini     Provider = "gemini"
	Grok       Provider = "grok"
	DeepSeek   Provider = "deepseek"
	Qwen       Provider = "qwen"
	Kimi       Provider = "kimi"
	Mistral    Provider = "mistral"
	OpenAI     Provider = "openai"
	DuckDuckGo Provider = "duckduckgo"
)

// All returns the supported providers in a stable order.
func All() []Provider {
	return []Provider{Gemini, Grok, DeepSeek, Qwen, Kimi, Mistral, OpenAI, DuckDuckGo}
}

// aliases maps wire-level model names onto providers.
var aliases = map[string]Provider{
	"gpt":     OpenAI,
	"chatgpt": OpenAI,
	"duck":    DuckDuckGo,
	"duckai":  DuckDuckGo,
}

// ErrUnknown is returned by Parse for an unrecognized provider name.
var ErrUnknown = errors.New("unknown provider")

// Parse resolves a wire-level model identifier to a Provider. Matching is
// case-insensitive and tolerates model suffixes like "gemini-2.0".
func Parse(name string) (Provider, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", fmt.Errorf("%w: empty name", ErrUnknown)
	}
	if p, ok := aliases[n]; ok {
		return p, nil
	}
	for alias, p := range aliases {
		if strings.HasPrefix(n, alias+"-") {
			return p, nil
		}
	}
	for _, p := range All() {
		if n == string(p) || strings.HasPrefix(n, string(p)+"-") {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknown, name)
}

// Adapter errors. Any of these reported from inside a session marks the
// session failed; recovery is the caller's explicit restart.
var (
	ErrElementNotFound    = errors.New("expected element not found")
	ErrNavigationRequired = errors.New("page navigation required")
	ErrResponseTimeout    = errors.New("response timeout")
	ErrSessionLost        = errors.New("session lost")
	ErrEmptyReply         = errors.New("empty reply")
)

// Adapter drives one target chat website through the automation capability.
// Implementations must not retry internally: errors propagate so the
// session manager can mark the session failed.
type Adapter interface {
	// Provider returns the backend identity this adapter serves.
	Provider() Provider

	// URL is the chat page to navigate to when a session starts.
	URL() string

	// Ready reports whether the chat interface has finished loading.
	Ready(ctx context.Context, d automation.Driver) (bool, error)

	// Submit locates the input control, injects the prompt and triggers
	// sending. Returns ErrElementNotFound when the page no longer matches
	// the profile, ErrNavigationRequired when the page must be reloaded.
	Submit(ctx context.Context, d automation.Driver, prompt string) error

	// AwaitCompletion blocks until the reply has finished rendering or the
	// context deadline passes. Returns ErrResponseTimeout on deadline and
	// ErrSessionLost when the page disappeared mid-wait.
	AwaitCompletion(ctx context.Context, d automation.Driver) error

	// Extract reads the final rendered assistant text. Returns
	// ErrEmptyReply when no new content is found.
	Extract(ctx context.Context, d automation.Driver) (string, error)
}
