// Package automation defines the browser automation capability consumed by
// provider adapters, plus a chromedp-backed implementation. Operations are
// selector-based; chat pages append messages, so read operations target the
// last matching node.
package automation

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no node matches the selector.
	ErrNotFound = errors.New("element not found")
	// ErrPageGone is returned when the underlying page or tab has disappeared.
	ErrPageGone = errors.New("page gone")
	// ErrLaunch is returned when the browser process could not be started.
	ErrLaunch = errors.New("browser launch failed")
)

// By identifies the selector language.
type By string

const (
	ByCSS   By = "css"
	ByXPath By = "xpath"
)

// Selector locates one or more nodes on the page.
type Selector struct {
	By    By
	Value string
}

// CSS builds a CSS selector.
func CSS(value string) Selector { return Selector{By: ByCSS, Value: value} }

// XPath builds an XPath selector.
func XPath(value string) Selector { return Selector{By: ByXPath, Value: value} }

// Driver is one live automated browser page. Implementations must be safe
// for concurrent use; every operation honors the context deadline.
type Driver interface {
	// Navigate loads the given URL and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// Count returns the number of nodes matching sel. Zero with nil error
	// means the selector matched nothing.
	Count(ctx context.Context, sel Selector) (int, error)

	// InsertText focuses the last node matching sel and inserts text as a
	// single input event (no per-key delay).
	InsertText(ctx context.Context, sel Selector, text string) error

	// Click clicks the last node matching sel.
	Click(ctx context.Context, sel Selector) error

	// ReadText returns the rendered text of the last node matching sel.
	ReadText(ctx context.Context, sel Selector) (string, error)

	// OuterHTML returns the outer HTML of the last node matching sel.
	OuterHTML(ctx context.Context, sel Selector) (string, error)

	// Screenshot captures the full page as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// Ping verifies the page is still reachable.
	Ping(ctx context.Context) error

	// Close tears down the page and the browser it owns.
	Close() error
}

// Launcher creates drivers. The session manager holds one Launcher and
// launches a fresh Driver per browser session.
type Launcher interface {
	Launch(ctx context.Context) (Driver, error)
}

// Exists reports whether sel matches at least one node.
func Exists(ctx context.Context, d Driver, sel Selector) (bool, error) {
	n, err := d.Count(ctx, sel)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
