package provider

import (
	"time"

	"github.com/odvcencio/chatproxy/pkg/automation"
)

// CompletionMode selects how reply completion is detected.
type CompletionMode string

const (
	// CompletionIndicator waits for a marker element to appear, e.g. the
	// microphone button that replaces Gemini's stop control.
	CompletionIndicator CompletionMode = "indicator"
	// CompletionStable samples the rendered answer and declares completion
	// once it stops changing across consecutive samples.
	CompletionStable CompletionMode = "stable"
)

// Profile is the declarative description of one chat website: where it
// lives, which nodes to poke, and how to tell the answer is done. Control
// flow stays uniform across providers; only this data varies.
type Profile struct {
	Provider Provider
	URL      string

	// Input receives the prompt text. Ready defaults to Input when unset.
	Input  automation.Selector
	Ready  automation.Selector
	Submit automation.Selector

	// Answer matches assistant message bubbles; the last match is read.
	Answer automation.Selector

	// Done is the completion marker for CompletionIndicator mode.
	Mode CompletionMode
	Done automation.Selector

	// SettleDelay is slept after submit before watching for completion, so
	// the previous answer's marker is not mistaken for the new one.
	SettleDelay time.Duration

	// Cleanup hints for the extracted HTML.
	CodeBlockSelector string // container divs holding decorated code blocks
	CodeTextSelector  string // the actual code text inside a container
	DropHiddenNodes   bool   // remove style="display: none;" nodes
}

// Profiles returns the built-in selector tables, keyed by provider.
func Profiles() map[Provider]Profile {
	profiles := []Profile{
		{
			Provider:          Gemini,
			URL:               "https://gemini.google.com/app",
			Input:             automation.CSS(".textarea"),
			Ready:             automation.CSS("button.submit"),
			Submit:            automation.CSS("button.submit"),
			Answer:            automation.XPath("//message-content"),
			Mode:              CompletionIndicator,
			Done:              automation.CSS("div.mic-button-container:not(.hidden)"),
			SettleDelay:       time.Second,
			CodeBlockSelector: "div.code-block",
			CodeTextSelector:  "div.formatted-code-block-internal-container",
		},
		{
			Provider:    Grok,
			URL:         "https://grok.com/",
			Input:       automation.CSS("textarea"),
			Ready:       automation.CSS(`button[type="submit"]`),
			Submit:      automation.CSS(`button[type="submit"]`),
			Answer:      automation.CSS("div.message-bubble"),
			Mode:        CompletionStable,
			SettleDelay: time.Second,
		},
		{
			Provider:    DeepSeek,
			URL:         "https://chat.deepseek.com/",
			Input:       automation.CSS("textarea"),
			Ready:       automation.CSS(`div[role="button"]`),
			Submit:      automation.CSS(`div[role="button"]`),
			Answer:      automation.XPath("//div[contains(@class, 'ds-markdown') and contains(@class, 'ds-markdown--block')]"),
			Mode:        CompletionStable,
			SettleDelay: time.Second,
		},
		{
			Provider:        Qwen,
			URL:             "https://chat.qwen.ai/",
			Input:           automation.CSS("textarea"),
			Ready:           automation.XPath("//textarea[@id='chat-input']"),
			Submit:          automation.CSS("#send-message-button"),
			Answer:          automation.XPath("//div[@id='response-content-container']"),
			Mode:            CompletionStable,
			SettleDelay:     time.Second,
			DropHiddenNodes: true,
		},
		{
			Provider:    Kimi,
			URL:         "https://www.kimi.com/chat/",
			Input:       automation.XPath("//div[@class='chat-input-editor']"),
			Ready:       automation.XPath("//div[@class='chat-input-editor']"),
			Submit:      automation.CSS(".send-button-container"),
			Answer:      automation.XPath("//div[@class='markdown-container']"),
			Mode:        CompletionIndicator,
			Done:        automation.CSS("div.send-button-container.disabled:not(.stop)"),
			SettleDelay: time.Second,
		},
		{
			Provider:    Mistral,
			URL:         "https://chat.mistral.ai/chat",
			Input:       automation.CSS(`textarea[name="message.text"]`),
			Ready:       automation.CSS(`button[type="submit"]`),
			Submit:      automation.CSS(`button[type="submit"]`),
			Answer:      automation.CSS("div.prose"),
			Mode:        CompletionStable,
			SettleDelay: time.Second,
		},
		{
			Provider:    OpenAI,
			URL:         "https://chatgpt.com/",
			Input:       automation.CSS(`div[contenteditable="true"]`),
			Ready:       automation.CSS(`button[data-testid="composer-speech-button"]`),
			Submit:      automation.CSS(`button[data-testid="send-button"]`),
			Answer:      automation.XPath(`//div[@data-message-author-role="assistant"]`),
			Mode:        CompletionIndicator,
			Done:        automation.CSS(`button[data-testid="composer-speech-button"]`),
			SettleDelay: time.Second,
		},
		{
			Provider:    DuckDuckGo,
			URL:         "https://duck.ai/",
			Input:       automation.CSS("textarea"),
			Ready:       automation.CSS(`button[type="submit"][aria-label="Send"]`),
			Submit:      automation.CSS(`button[type="submit"][aria-label="Send"]`),
			Answer:      automation.XPath("//div[@heading]"),
			Mode:        CompletionStable,
			SettleDelay: time.Second,
		},
	}

	out := make(map[Provider]Profile, len(profiles))
	for _, p := range profiles {
		out[p.Provider] = p
	}
	return out
}
