package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodBrowser drives Chrome through go-rod. It launches its own Chrome
// unless ControlURL points at a running debugger endpoint.
type RodBrowser struct {
	mu         sync.Mutex
	opts       BrowserOptions
	controlURL string
	launcher   *launcher.Launcher
	browser    *rod.Browser
	page       *rod.Page
}

func NewRodBrowser(opts BrowserOptions, controlURL string) *RodBrowser {
	return &RodBrowser{opts: opts.withDefaults(), controlURL: controlURL}
}

func (b *RodBrowser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page != nil {
		return nil
	}

	controlURL := b.controlURL
	if controlURL == "" {
		b.launcher = launcher.New().Headless(b.opts.Headless)
		u, err := b.launcher.Launch()
		if err != nil {
			b.launcher = nil
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		b.shutdown()
		return fmt.Errorf("connect to chrome: %w", err)
	}
	b.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		b.shutdown()
		return fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             b.opts.ViewportWidth,
		Height:            b.opts.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		_ = page.Close()
		b.shutdown()
		return fmt.Errorf("set viewport: %w", err)
	}

	b.page = page
	return nil
}

func (b *RodBrowser) shutdown() {
	if b.page != nil {
		_ = b.page.Close()
		b.page = nil
	}
	if b.browser != nil {
		_ = b.browser.Close()
		b.browser = nil
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher = nil
	}
}

func (b *RodBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdown()
	return nil
}

func (b *RodBrowser) HasPage() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.page != nil
}

func (b *RodBrowser) current(ctx context.Context, timeout time.Duration) (*rod.Page, error) {
	b.mu.Lock()
	page := b.page
	b.mu.Unlock()
	if page == nil {
		return nil, ErrNoPage
	}
	return page.Context(ctx).Timeout(timeout), nil
}

func (b *RodBrowser) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	page, err := b.current(ctx, timeout)
	if err != nil {
		return err
	}
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (b *RodBrowser) Click(ctx context.Context, selector string) error {
	page, err := b.current(ctx, b.opts.ActionTimeout)
	if err != nil {
		return err
	}
	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("no element found for selector %s: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (b *RodBrowser) Fill(ctx context.Context, selector, text string) error {
	page, err := b.current(ctx, b.opts.ActionTimeout)
	if err != nil {
		return err
	}
	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("no element found for selector %s: %w", selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(text)
}

func (b *RodBrowser) Screenshot(ctx context.Context) ([]byte, error) {
	page, err := b.current(ctx, b.opts.ActionTimeout)
	if err != nil {
		return nil, err
	}
	return page.Screenshot(false, nil)
}

func (b *RodBrowser) Content(ctx context.Context) (string, error) {
	page, err := b.current(ctx, b.opts.ActionTimeout)
	if err != nil {
		return "", err
	}
	return page.HTML()
}
