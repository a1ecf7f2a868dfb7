// Package toolstest provides an in-memory tools.Browser for tests.
package toolstest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rahul/aitester/internal/tools"
)

// PNG is a tiny valid PNG header used as the fake screenshot payload.
var PNG = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Browser records calls and serves canned page state. Set the *Err fields
// to inject failures.
type Browser struct {
	mu sync.Mutex

	HTML string

	StartErr      error
	NavigateErr   error
	ClickErr      error
	FillErr       error
	ScreenshotErr error
	ContentErr    error

	// Selectors lists the selectors that resolve; nil means all resolve.
	Selectors map[string]bool

	Starts int
	Closes int
	URL    string
	Calls  []string
	Filled map[string]string

	open bool
}

func New() *Browser {
	return &Browser{
		HTML:   "<html><head><title>Blank</title></head><body></body></html>",
		Filled: make(map[string]string),
	}
}

func (b *Browser) record(call string) {
	b.Calls = append(b.Calls, call)
}

func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Starts++
	b.record("start")
	if b.StartErr != nil {
		return b.StartErr
	}
	b.open = true
	return nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closes++
	b.record("close")
	b.open = false
	return nil
}

func (b *Browser) HasPage() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

func (b *Browser) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("navigate " + url)
	if !b.open {
		return tools.ErrNoPage
	}
	if b.NavigateErr != nil {
		return b.NavigateErr
	}
	b.URL = url
	return nil
}

func (b *Browser) resolves(selector string) bool {
	return b.Selectors == nil || b.Selectors[selector]
}

func (b *Browser) Click(ctx context.Context, selector string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("click " + selector)
	if !b.open {
		return tools.ErrNoPage
	}
	if b.ClickErr != nil {
		return b.ClickErr
	}
	if !b.resolves(selector) {
		return fmt.Errorf("no element found for selector %s", selector)
	}
	return nil
}

func (b *Browser) Fill(ctx context.Context, selector, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("fill " + selector)
	if !b.open {
		return tools.ErrNoPage
	}
	if b.FillErr != nil {
		return b.FillErr
	}
	if !b.resolves(selector) {
		return fmt.Errorf("no element found for selector %s", selector)
	}
	b.Filled[selector] = text
	return nil
}

func (b *Browser) Screenshot(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return nil, tools.ErrNoPage
	}
	if b.ScreenshotErr != nil {
		return nil, b.ScreenshotErr
	}
	return append([]byte(nil), PNG...), nil
}

func (b *Browser) Content(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return "", tools.ErrNoPage
	}
	if b.ContentErr != nil {
		return "", b.ContentErr
	}
	return b.HTML, nil
}

// ErrTimeout mimics a navigation timeout.
var ErrTimeout = errors.New("net::ERR_TIMED_OUT")

var _ tools.Browser = (*Browser)(nil)
