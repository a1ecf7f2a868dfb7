package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

// Browser is the page-level automation surface the executor drives.
// Implementations own exactly one page.
type Browser interface {
	Start(ctx context.Context) error
	Close() error
	HasPage() bool
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, text string) error
	// Screenshot captures the visible viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// Content returns the full serialized document.
	Content(ctx context.Context) (string, error)
}

// BrowserOptions configure a browser backend.
type BrowserOptions struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	// ActionTimeout bounds element lookups for click and fill.
	ActionTimeout time.Duration
}

func (o BrowserOptions) withDefaults() BrowserOptions {
	if o.ViewportWidth <= 0 {
		o.ViewportWidth = 1280
	}
	if o.ViewportHeight <= 0 {
		o.ViewportHeight = 720
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = 10 * time.Second
	}
	return o
}

// ChromeBrowser drives a local Chrome through chromedp.
type ChromeBrowser struct {
	mu            sync.Mutex
	opts          BrowserOptions
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewChromeBrowser(opts BrowserOptions) *ChromeBrowser {
	return &ChromeBrowser{opts: opts.withDefaults()}
}

func (b *ChromeBrowser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return nil
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.WindowSize(b.opts.ViewportWidth, b.opts.ViewportHeight),
	)

	// The browser outlives the start call, so it hangs off Background.
	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	// The first Run launches Chrome and binds the process to the context it
	// is given, so it runs on browserCtx itself. ctx only bounds the wait.
	browserCtx := b.browserCtx
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(browserCtx,
			chromedp.EmulateViewport(int64(b.opts.ViewportWidth), int64(b.opts.ViewportHeight)),
		)
	}()

	select {
	case err := <-done:
		if err != nil {
			b.cleanup()
			return fmt.Errorf("failed to initialize browser: %w", err)
		}
		return nil
	case <-ctx.Done():
		b.cleanup()
		<-done
		return fmt.Errorf("failed to initialize browser: %w", ctx.Err())
	}
}

func (b *ChromeBrowser) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
	b.browserCancel = nil
	b.allocCancel = nil
}

func (b *ChromeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanup()
	return nil
}

func (b *ChromeBrowser) HasPage() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browserCtx == nil {
		return false
	}
	select {
	case <-b.browserCtx.Done():
		return false
	default:
		return true
	}
}

// run executes actions on the page, bounded by timeout and by ctx.
func (b *ChromeBrowser) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	b.mu.Lock()
	browserCtx := b.browserCtx
	b.mu.Unlock()
	if browserCtx == nil {
		return ErrNoPage
	}

	actionCtx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(actionCtx, actions...)
}

func (b *ChromeBrowser) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return b.run(ctx, timeout, chromedp.Navigate(url))
}

func (b *ChromeBrowser) Click(ctx context.Context, selector string) error {
	return b.run(ctx, b.opts.ActionTimeout, chromedp.Click(selector, chromedp.ByQuery))
}

func (b *ChromeBrowser) Fill(ctx context.Context, selector, text string) error {
	actions := []chromedp.Action{
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
	}
	if text != "" {
		actions = append(actions, chromedp.SendKeys(selector, text, chromedp.ByQuery))
	}
	return b.run(ctx, b.opts.ActionTimeout, actions...)
}

func (b *ChromeBrowser) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := b.run(ctx, b.opts.ActionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (b *ChromeBrowser) Content(ctx context.Context) (string, error) {
	var html string
	err := b.run(ctx, b.opts.ActionTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}
