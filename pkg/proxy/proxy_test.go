package proxy

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/chatproxy/pkg/automation"
	"github.com/odvcencio/chatproxy/pkg/history"
	"github.com/odvcencio/chatproxy/pkg/logging"
	"github.com/odvcencio/chatproxy/pkg/provider"
	"github.com/odvcencio/chatproxy/pkg/queue"
	"github.com/odvcencio/chatproxy/pkg/session"
	"github.com/odvcencio/chatproxy/pkg/translate"
)

type nullDriver struct{}

func (nullDriver) Navigate(context.Context, string) error { return nil }
func (nullDriver) Count(context.Context, automation.Selector) (int, error) {
	return 1, nil
}
func (nullDriver) InsertText(context.Context, automation.Selector, string) error { return nil }
func (nullDriver) Click(context.Context, automation.Selector) error              { return nil }
func (nullDriver) ReadText(context.Context, automation.Selector) (string, error) {
	return "", nil
}
func (nullDriver) OuterHTML(context.Context, automation.Selector) (string, error) {
	return "", nil
}
func (nullDriver) Screenshot(context.Context) ([]byte, error) { return nil, nil }
func (nullDriver) Ping(context.Context) error                 { return nil }
func (nullDriver) Close() error                               { return nil }

type nullLauncher struct{}

func (nullLauncher) Launch(context.Context) (automation.Driver, error) {
	return nullDriver{}, nil
}

// echoAdapter answers "4" to prompts mentioning 2+2 and parrots otherwise.
type echoAdapter struct {
	p provider.Provider

	mu      sync.Mutex
	prompts []string
	fail    error
}

func (a *echoAdapter) Provider() provider.Provider { return a.p }
func (a *echoAdapter) URL() string                 { return "https://example.test/chat" }
func (a *echoAdapter) Ready(context.Context, automation.Driver) (bool, error) {
	return true, nil
}

func (a *echoAdapter) Submit(_ context.Context, _ automation.Driver, prompt string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail != nil {
		return a.fail
	}
	a.prompts = append(a.prompts, prompt)
	return nil
}

func (a *echoAdapter) AwaitCompletion(context.Context, automation.Driver) error {
	return nil
}

func (a *echoAdapter) Extract(context.Context, automation.Driver) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	last := a.prompts[len(a.prompts)-1]
	if strings.Contains(last, "2+2") {
		return "4", nil
	}
	return "echo: " + last, nil
}

func (a *echoAdapter) lastPrompt() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.prompts) == 0 {
		return ""
	}
	return a.prompts[len(a.prompts)-1]
}

func newTestOrchestrator(t *testing.T, adapter *echoAdapter, opts Options) (*Orchestrator, func()) {
	t.Helper()
	adapters := map[provider.Provider]provider.Adapter{adapter.p: adapter}
	sessions := session.NewManager(nullLauncher{}, adapters, session.Options{
		Settings: func(provider.Provider) session.Settings {
			return session.Settings{StartAttempts: 1, StartTimeout: time.Second, PollInterval: time.Millisecond, FailureLimit: 3}
		},
	}, logging.NewNop())
	dispatcher := queue.NewDispatcher(func(provider.Provider) queue.Settings {
		return queue.Settings{Depth: 4, JobTimeout: time.Second}
	}, logging.NewNop())

	o := New(sessions, dispatcher, opts, logging.NewNop())
	return o, func() {
		dispatcher.Close()
		sessions.Close()
	}
}

func TestAskAnswersQuestion(t *testing.T) {
	adapter := &echoAdapter{p: provider.Grok}
	o, cleanup := newTestOrchestrator(t, adapter, Options{})
	defer cleanup()

	res, err := o.Ask(context.Background(), provider.Grok, []translate.Message{
		{Role: translate.RoleUser, Content: "what is 2+2?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "4", res.Reply)
	assert.Equal(t, "[user] what is 2+2?", adapter.lastPrompt())
	assert.Equal(t, adapter.lastPrompt(), res.Prompt, "result carries the submitted prompt")
}

func TestAskModelResolvesAliases(t *testing.T) {
	adapter := &echoAdapter{p: provider.Grok}
	o, cleanup := newTestOrchestrator(t, adapter, Options{})
	defer cleanup()

	res, err := o.AskModel(context.Background(), "grok-latest", []translate.Message{
		{Role: translate.RoleUser, Content: "what is 2+2?"},
	})
	require.NoError(t, err)
	assert.Equal(t, provider.Grok, res.Provider)
	assert.Equal(t, "4", res.Reply)
}

func TestAskModelUnknown(t *testing.T) {
	adapter := &echoAdapter{p: provider.Grok}
	o, cleanup := newTestOrchestrator(t, adapter, Options{})
	defer cleanup()

	_, err := o.AskModel(context.Background(), "llama", nil)
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, Classify(err).Code)
}

func TestAskRejectsEmptyTranscript(t *testing.T) {
	adapter := &echoAdapter{p: provider.Grok}
	o, cleanup := newTestOrchestrator(t, adapter, Options{})
	defer cleanup()

	_, err := o.Ask(context.Background(), provider.Grok, []translate.Message{
		{Role: translate.RoleUser, Content: "   "},
	})
	require.Error(t, err)
	assert.Equal(t, CodeInvalidRequest, Classify(err).Code)
}

func TestAskIncrementalTrimsSeenTurns(t *testing.T) {
	adapter := &echoAdapter{p: provider.Grok}
	store := history.NewMemoryStore()
	o, cleanup := newTestOrchestrator(t, adapter, Options{Store: store, Incremental: true})
	defer cleanup()

	first := []translate.Message{{Role: translate.RoleUser, Content: "what is 2+2?"}}
	res, err := o.Ask(context.Background(), provider.Grok, first)
	require.NoError(t, err)
	require.Equal(t, "4", res.Reply)

	second := append(first,
		translate.Message{Role: translate.RoleAssistant, Content: "4"},
		translate.Message{Role: translate.RoleUser, Content: "and 3+3?"},
	)
	res, err = o.Ask(context.Background(), provider.Grok, second)
	require.NoError(t, err)

	assert.Equal(t, "[user] and 3+3?", adapter.lastPrompt(), "already-answered turns must not be resent")
	assert.Equal(t, "[user] and 3+3?", res.Prompt)
}

func TestAskRecordsHistory(t *testing.T) {
	adapter := &echoAdapter{p: provider.Grok}
	store := history.NewMemoryStore()
	o, cleanup := newTestOrchestrator(t, adapter, Options{Store: store})
	defer cleanup()

	_, err := o.Ask(context.Background(), provider.Grok, []translate.Message{
		{Role: translate.RoleUser, Content: "what is 2+2?"},
	})
	require.NoError(t, err)

	last, err := store.LastReply(context.Background(), string(provider.Grok))
	require.NoError(t, err)
	assert.Equal(t, "4", last)
}

func TestAskPropagatesAdapterFailure(t *testing.T) {
	adapter := &echoAdapter{p: provider.Grok, fail: provider.ErrSessionLost}
	o, cleanup := newTestOrchestrator(t, adapter, Options{})
	defer cleanup()

	_, err := o.Ask(context.Background(), provider.Grok, []translate.Message{
		{Role: translate.RoleUser, Content: "hello"},
	})
	require.Error(t, err)
	assert.Equal(t, CodeSessionError, Classify(err).Code)
}

func TestModels(t *testing.T) {
	adapter := &echoAdapter{p: provider.Grok}
	o, cleanup := newTestOrchestrator(t, adapter, Options{
		Providers: []provider.Provider{provider.Grok, provider.Gemini},
	})
	defer cleanup()

	models := o.Models()
	require.Len(t, models, 2)
	assert.Equal(t, "grok", models[0].ID)
	assert.NotEmpty(t, models[0].URL)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		code ErrorCode
	}{
		{provider.ErrUnknown, CodeNotFound},
		{queue.ErrOverloaded, CodeOverloaded},
		{queue.ErrTimedOutInQueue, CodeTimeout},
		{provider.ErrResponseTimeout, CodeTimeout},
		{context.DeadlineExceeded, CodeTimeout},
		{session.ErrSessionStart, CodeSessionError},
		{provider.ErrSessionLost, CodeSessionError},
		{provider.ErrNavigationRequired, CodeSessionError},
		{errors.New("boom"), CodeServerError},
	}
	for _, tc := range cases {
		got := Classify(tc.err)
		require.NotNil(t, got)
		assert.Equal(t, tc.code, got.Code, "for %v", tc.err)
	}
	assert.Nil(t, Classify(nil))

	wrapped := WrapProxyError(CodeInvalidRequest, "bad", errors.New("cause"))
	assert.Equal(t, CodeInvalidRequest, Classify(wrapped).Code)
}

func TestRestartAndHealth(t *testing.T) {
	adapter := &echoAdapter{p: provider.Grok}
	o, cleanup := newTestOrchestrator(t, adapter, Options{})
	defer cleanup()

	_, err := o.Ask(context.Background(), provider.Grok, []translate.Message{
		{Role: translate.RoleUser, Content: "hello"},
	})
	require.NoError(t, err)

	health := o.Health()
	require.Len(t, health, 1)
	assert.Equal(t, session.StateReady, health[0].State)

	require.NoError(t, o.Restart(context.Background(), provider.Grok))
	health = o.Health()
	assert.Equal(t, session.StateAbsent, health[0].State)
}
