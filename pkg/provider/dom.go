package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odvcencio/chatproxy/pkg/automation"
	"github.com/odvcencio/chatproxy/pkg/logging"
)

// Options tunes the polling behavior of a DOM adapter. Values come from the
// per-provider config, not from the profile, so operators can adjust them
// without touching selector tables.
type Options struct {
	// PollInterval bounds how often completion signals are sampled.
	PollInterval time.Duration
	// StableSamples is how many identical consecutive samples declare a
	// stabilization-mode reply complete.
	StableSamples int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.StableSamples <= 0 {
		o.StableSamples = 3
	}
	return o
}

// domAdapter implements Adapter for any provider described by a Profile.
type domAdapter struct {
	profile Profile
	opts    Options
	logger  *logging.Logger
}

// NewAdapter builds an adapter from a selector profile.
func NewAdapter(profile Profile, opts Options, logger *logging.Logger) Adapter {
	if profile.Ready.Value == "" {
		profile.Ready = profile.Input
	}
	return &domAdapter{profile: profile, opts: opts.withDefaults(), logger: logger}
}

func (a *domAdapter) Provider() Provider { return a.profile.Provider }

func (a *domAdapter) URL() string { return a.profile.URL }

func (a *domAdapter) Ready(ctx context.Context, d automation.Driver) (bool, error) {
	ok, err := automation.Exists(ctx, d, a.profile.Ready)
	if err != nil {
		return false, a.classify(err)
	}
	return ok, nil
}

func (a *domAdapter) Submit(ctx context.Context, d automation.Driver, prompt string) error {
	n, err := d.Count(ctx, a.profile.Input)
	if err != nil {
		return a.classify(err)
	}
	if n == 0 {
		// When a distinct ready marker is gone too, the tab has wandered off
		// the chat page and needs a reload, not a new selector table.
		if a.profile.Ready != a.profile.Input {
			if ok, rerr := automation.Exists(ctx, d, a.profile.Ready); rerr == nil && !ok {
				return fmt.Errorf("%w: %s", ErrNavigationRequired, a.profile.Provider)
			}
		}
		return fmt.Errorf("%w: input %q on %s", ErrElementNotFound, a.profile.Input.Value, a.profile.Provider)
	}

	if err := d.InsertText(ctx, a.profile.Input, prompt); err != nil {
		return a.classify(err)
	}

	// The send control may only render once the input is non-empty.
	if err := a.waitFor(ctx, d, a.profile.Submit); err != nil {
		return err
	}
	if err := d.Click(ctx, a.profile.Submit); err != nil {
		return a.classify(err)
	}

	a.logger.Debug(logging.CategoryProvider, "prompt_submitted", "", map[string]any{
		"provider": string(a.profile.Provider),
		"chars":    len(prompt),
	})
	return nil
}

func (a *domAdapter) AwaitCompletion(ctx context.Context, d automation.Driver) error {
	// Let the page register the submission before watching for completion,
	// otherwise the previous answer's marker satisfies the check.
	if a.profile.SettleDelay > 0 {
		select {
		case <-time.After(a.profile.SettleDelay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrResponseTimeout, a.profile.Provider)
		}
	}

	switch a.profile.Mode {
	case CompletionIndicator:
		return a.awaitIndicator(ctx, d)
	default:
		return a.awaitStable(ctx, d)
	}
}

// awaitIndicator polls for the profile's done marker.
func (a *domAdapter) awaitIndicator(ctx context.Context, d automation.Driver) error {
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	for {
		done, err := automation.Exists(ctx, d, a.profile.Done)
		if err != nil {
			return a.classify(err)
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrResponseTimeout, a.profile.Provider)
		case <-ticker.C:
		}
	}
}

// awaitStable samples the rendered answer until it stops changing.
func (a *domAdapter) awaitStable(ctx context.Context, d automation.Driver) error {
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	var last string
	stable := 0
	for {
		text, err := d.ReadText(ctx, a.profile.Answer)
		switch {
		case errors.Is(err, automation.ErrNotFound):
			// Answer bubble not rendered yet; keep waiting.
		case err != nil:
			return a.classify(err)
		case text != "" && text == last:
			stable++
			if stable >= a.opts.StableSamples {
				return nil
			}
		default:
			last = text
			stable = 0
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrResponseTimeout, a.profile.Provider)
		case <-ticker.C:
		}
	}
}

func (a *domAdapter) Extract(ctx context.Context, d automation.Driver) (string, error) {
	html, err := d.OuterHTML(ctx, a.profile.Answer)
	if err != nil {
		if errors.Is(err, automation.ErrNotFound) {
			return "", fmt.Errorf("%w: no answer on %s", ErrEmptyReply, a.profile.Provider)
		}
		return "", a.classify(err)
	}

	text, err := CleanReply(html, CleanupHints{
		CodeBlockSelector: a.profile.CodeBlockSelector,
		CodeTextSelector:  a.profile.CodeTextSelector,
		DropHiddenNodes:   a.profile.DropHiddenNodes,
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyReply, a.profile.Provider)
	}
	return text, nil
}

// waitFor polls until sel matches at least one node or ctx expires.
func (a *domAdapter) waitFor(ctx context.Context, d automation.Driver, sel automation.Selector) error {
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	for {
		ok, err := automation.Exists(ctx, d, sel)
		if err != nil {
			return a.classify(err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %q on %s", ErrElementNotFound, sel.Value, a.profile.Provider)
		case <-ticker.C:
		}
	}
}

// classify maps automation failures onto the adapter error taxonomy.
func (a *domAdapter) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, automation.ErrPageGone):
		return fmt.Errorf("%w: %v", ErrSessionLost, err)
	case errors.Is(err, automation.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrElementNotFound, err)
	default:
		return err
	}
}
