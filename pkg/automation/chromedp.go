package automation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"github.com/odvcencio/chatproxy/pkg/logging"
)

// ChromeOptions configures the launched Chrome instance.
type ChromeOptions struct {
	Headless   bool
	ProfileDir string // reused across launches when non-empty
	UserAgent  string
	ProxyURL   string
}

// ChromeLauncher launches chromedp-backed drivers.
type ChromeLauncher struct {
	opts   ChromeOptions
	logger *logging.Logger
}

// NewChromeLauncher creates a launcher with the given options.
func NewChromeLauncher(opts ChromeOptions, logger *logging.Logger) *ChromeLauncher {
	return &ChromeLauncher{opts: opts, logger: logger}
}

// Launch starts a Chrome process and returns a Driver bound to its first tab.
func (l *ChromeLauncher) Launch(ctx context.Context) (Driver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if l.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.opts.UserAgent))
	}
	if l.opts.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(l.opts.ProfileDir))
	}
	if l.opts.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(l.opts.ProxyURL))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// The tab context must outlive ctx, so the initial Run is gated on ctx
	// separately: a wedged Chrome gets cancelled instead of hanging acquire.
	runErr := make(chan error, 1)
	go func() { runErr <- chromedp.Run(tabCtx) }()
	select {
	case err := <-runErr:
		if err != nil {
			tabCancel()
			allocCancel()
			return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
		}
	case <-ctx.Done():
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, ctx.Err())
	}

	l.logger.Info(logging.CategoryBrowser, "browser_launched", "chrome started", map[string]any{
		"headless": l.opts.Headless,
		"profile":  l.opts.ProfileDir,
	})

	return &chromeDriver{
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		logger:      l.logger,
	}, nil
}

// chromeDriver implements Driver over one chromedp tab context.
type chromeDriver struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *logging.Logger
	mu          sync.Mutex
}

// opCtx derives the run context, carrying the caller's deadline onto the
// tab context so chromedp actions abort when the caller gives up.
func (d *chromeDriver) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := ctx.Deadline(); ok {
		return context.WithDeadline(d.ctx, dl)
	}
	return context.WithCancel(d.ctx)
}

func (d *chromeDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	run, cancel := d.opCtx(ctx)
	defer cancel()

	d.logger.Debug(logging.CategoryBrowser, "navigate", url, nil)
	if err := chromedp.Run(run, chromedp.Navigate(url)); err != nil {
		return d.classify(err)
	}
	return nil
}

func (d *chromeDriver) Count(ctx context.Context, sel Selector) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	nodes, err := d.nodes(ctx, sel)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func (d *chromeDriver) InsertText(ctx context.Context, sel Selector, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	node, err := d.lastNode(ctx, sel)
	if err != nil {
		return err
	}

	run, cancel := d.opCtx(ctx)
	defer cancel()

	err = chromedp.Run(run,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := dom.Focus().WithNodeID(node.NodeID).Do(ctx); err != nil {
				return err
			}
			return input.InsertText(text).Do(ctx)
		}),
	)
	if err != nil {
		return d.classify(err)
	}
	return nil
}

func (d *chromeDriver) Click(ctx context.Context, sel Selector) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	node, err := d.lastNode(ctx, sel)
	if err != nil {
		return err
	}

	run, cancel := d.opCtx(ctx)
	defer cancel()

	if err := chromedp.Run(run, chromedp.MouseClickNode(node)); err != nil {
		return d.classify(err)
	}
	return nil
}

func (d *chromeDriver) ReadText(ctx context.Context, sel Selector) (string, error) {
	html, err := d.OuterHTML(ctx, sel)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parsing node html: %w", err)
	}
	return strings.TrimSpace(doc.Text()), nil
}

func (d *chromeDriver) OuterHTML(ctx context.Context, sel Selector) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	node, err := d.lastNode(ctx, sel)
	if err != nil {
		return "", err
	}

	run, cancel := d.opCtx(ctx)
	defer cancel()

	var html string
	err = chromedp.Run(run,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			html, err = dom.GetOuterHTML().WithBackendNodeID(node.BackendNodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return "", d.classify(err)
	}
	return html, nil
}

func (d *chromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	run, cancel := d.opCtx(ctx)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(run, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, d.classify(err)
	}
	return buf, nil
}

func (d *chromeDriver) Ping(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	run, cancel := d.opCtx(ctx)
	defer cancel()

	var url string
	if err := chromedp.Run(run, chromedp.Location(&url)); err != nil {
		return d.classify(err)
	}
	return nil
}

func (d *chromeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Info(logging.CategoryBrowser, "browser_closed", "chrome stopped", nil)
	d.cancel()
	d.allocCancel()
	return nil
}

// nodes resolves sel to DOM nodes. Caller must hold d.mu.
func (d *chromeDriver) nodes(ctx context.Context, sel Selector) ([]*cdp.Node, error) {
	run, cancel := d.opCtx(ctx)
	defer cancel()

	var nodes []*cdp.Node
	var err error
	switch sel.By {
	case ByXPath:
		err = chromedp.Run(run, chromedp.Nodes(sel.Value, &nodes, chromedp.BySearch, chromedp.AtLeast(0)))
	default:
		err = chromedp.Run(run, chromedp.Nodes(sel.Value, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	}
	if err != nil {
		return nil, d.classify(err)
	}
	return nodes, nil
}

// lastNode resolves sel and returns the last matching node, or ErrNotFound.
func (d *chromeDriver) lastNode(ctx context.Context, sel Selector) (*cdp.Node, error) {
	nodes, err := d.nodes(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sel.Value)
	}
	return nodes[len(nodes)-1], nil
}

// classify maps chromedp failures onto the package sentinels. A dead tab
// context means the page (or the whole browser) is gone.
func (d *chromeDriver) classify(err error) error {
	if err == nil {
		return nil
	}
	if d.ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrPageGone, err)
	}
	return err
}
