// Package proxy composes translation, queueing and session management into
// the single Ask operation the HTTP surfaces call.
package proxy

import (
	"context"
	"strings"

	"github.com/odvcencio/chatproxy/pkg/automation"
	"github.com/odvcencio/chatproxy/pkg/history"
	"github.com/odvcencio/chatproxy/pkg/logging"
	"github.com/odvcencio/chatproxy/pkg/provider"
	"github.com/odvcencio/chatproxy/pkg/queue"
	"github.com/odvcencio/chatproxy/pkg/session"
	"github.com/odvcencio/chatproxy/pkg/translate"
)

// Model describes one chat backend for the model-listing endpoints.
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Orchestrator is the service core behind both HTTP surfaces.
type Orchestrator struct {
	sessions    *session.Manager
	dispatcher  *queue.Dispatcher
	store       history.Store
	flatten     translate.Format
	incremental bool
	models      []Model
	logger      *logging.Logger
}

// Options configures an Orchestrator.
type Options struct {
	// Flatten controls transcript rendering; zero value means defaults.
	Flatten translate.Format
	// Incremental trims turns already answered according to history.
	Incremental bool
	// Store records exchanges; nil disables history (and incremental mode).
	Store history.Store
	// Providers restricts the advertised model list; nil means all with a
	// profile.
	Providers []provider.Provider
}

// New wires an Orchestrator over its collaborators.
func New(sessions *session.Manager, dispatcher *queue.Dispatcher, opts Options, logger *logging.Logger) *Orchestrator {
	providers := opts.Providers
	if providers == nil {
		providers = provider.All()
	}
	profiles := provider.Profiles()
	models := make([]Model, 0, len(providers))
	for _, p := range providers {
		prof, ok := profiles[p]
		if !ok {
			continue
		}
		models = append(models, Model{ID: string(p), Name: string(p), URL: prof.URL})
	}

	return &Orchestrator{
		sessions:    sessions,
		dispatcher:  dispatcher,
		store:       opts.Store,
		flatten:     opts.Flatten,
		incremental: opts.Incremental && opts.Store != nil,
		models:      models,
		logger:      logger,
	}
}

// Result is one completed exchange. Prompt is the text actually submitted
// to the page, after flattening and any incremental trimming.
type Result struct {
	Provider provider.Provider
	Prompt   string
	Reply    string
}

// Ask runs one full exchange: render the transcript to a prompt, wait for
// the provider's lane, drive the page, and return the cleaned reply.
func (o *Orchestrator) Ask(ctx context.Context, p provider.Provider, msgs []translate.Message) (Result, error) {
	prompt, err := o.buildPrompt(ctx, p, msgs)
	if err != nil {
		return Result{}, err
	}

	var reply string
	err = o.dispatcher.Do(ctx, p, func(ctx context.Context, jobID string) error {
		return o.sessions.WithSession(ctx, p, func(ctx context.Context, d automation.Driver, a provider.Adapter) error {
			if err := a.Submit(ctx, d, prompt); err != nil {
				return err
			}
			if err := a.AwaitCompletion(ctx, d); err != nil {
				return err
			}
			var err error
			reply, err = a.Extract(ctx, d)
			return err
		})
	})
	if err != nil {
		return Result{}, err
	}

	o.record(ctx, p, prompt, reply)
	return Result{Provider: p, Prompt: prompt, Reply: reply}, nil
}

// AskModel resolves a wire model name and runs Ask.
func (o *Orchestrator) AskModel(ctx context.Context, model string, msgs []translate.Message) (Result, error) {
	p, err := provider.Parse(model)
	if err != nil {
		return Result{}, err
	}
	return o.Ask(ctx, p, msgs)
}

func (o *Orchestrator) buildPrompt(ctx context.Context, p provider.Provider, msgs []translate.Message) (string, error) {
	if o.incremental {
		last, err := o.store.LastReply(ctx, string(p))
		if err != nil {
			o.logger.Warn(logging.CategoryHistory, "last_reply_lookup_failed", err.Error(), map[string]any{
				"provider": string(p),
			})
		} else {
			msgs = translate.Unseen(msgs, last)
		}
	}
	prompt := translate.Flatten(msgs, o.flatten)
	if strings.TrimSpace(prompt) == "" {
		return "", NewProxyError(CodeInvalidRequest, "no message content")
	}
	return prompt, nil
}

func (o *Orchestrator) record(ctx context.Context, p provider.Provider, prompt, reply string) {
	if o.store == nil {
		return
	}
	err := o.store.Record(ctx, history.Exchange{
		Provider: string(p),
		Prompt:   prompt,
		Reply:    reply,
	})
	if err != nil {
		o.logger.Warn(logging.CategoryHistory, "exchange_record_failed", err.Error(), map[string]any{
			"provider": string(p),
		})
	}
}

// Restart force-restarts one provider's browser session.
func (o *Orchestrator) Restart(ctx context.Context, p provider.Provider) error {
	return o.sessions.Restart(ctx, p)
}

// Health snapshots all provider sessions.
func (o *Orchestrator) Health() []session.Status {
	return o.sessions.Health()
}

// Models lists the advertised chat backends.
func (o *Orchestrator) Models() []Model {
	out := make([]Model, len(o.models))
	copy(out, o.models)
	return out
}
