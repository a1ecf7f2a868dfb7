package tools

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rahul/aitester/internal/governance"
)

// Observation is the plain result of one capability call. Exactly one of
// Status and Error is set.
type Observation struct {
	Status string
	Error  string
}

// Failed reports whether the action did not succeed.
func (o Observation) Failed() bool {
	return o.Error != ""
}

// Fields returns the observation as the mapping sent back to the model.
func (o Observation) Fields() map[string]any {
	if o.Failed() {
		return map[string]any{"error": o.Error}
	}
	return map[string]any{"status": o.Status}
}

func (o Observation) String() string {
	if o.Failed() {
		return "error: " + o.Error
	}
	return "status: " + o.Status
}

// ExecutorOptions tune timeouts and the failure boundary.
type ExecutorOptions struct {
	NavigationTimeout time.Duration
	// FatalNavigation makes goto_url failures end the run instead of being
	// reported back to the model.
	FatalNavigation bool
}

type handler func(ctx context.Context, args map[string]any) (string, error)

// Executor runs capabilities against a Browser.
type Executor struct {
	browser  Browser
	opts     ExecutorOptions
	gate     governance.PolicyEngine
	handlers map[Capability]handler
}

func NewExecutor(browser Browser, opts ExecutorOptions) *Executor {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	e := &Executor{
		browser:  browser,
		opts:     opts,
		handlers: make(map[Capability]handler),
	}
	e.registerHandlers()
	return e
}

// WithPolicy installs a gate evaluated before every action.
func (e *Executor) WithPolicy(p governance.PolicyEngine) *Executor {
	e.gate = p
	return e
}

func (e *Executor) registerHandlers() {
	e.handlers[OpenWebBrowser] = e.openWebBrowser
	e.handlers[GotoURL] = e.gotoURL
	e.handlers[ClickElement] = e.clickElement
	e.handlers[TypeText] = e.typeText
}

// Browser exposes the driven browser for observation capture.
func (e *Executor) Browser() Browser {
	return e.browser
}

func (e *Executor) Start(ctx context.Context) error {
	return e.browser.Start(ctx)
}

func (e *Executor) Close() error {
	return e.browser.Close()
}

// Execute runs the named capability. Action failures come back inside the
// Observation; the returned error is reserved for an unknown capability, a
// fatal navigation failure, or a broken policy gate.
func (e *Executor) Execute(ctx context.Context, sessionID, name string, args map[string]any) (Observation, error) {
	capability, ok := Lookup(name)
	if !ok {
		return Observation{}, &CapabilityNotFoundError{Name: name}
	}

	if e.gate != nil {
		res, err := e.gate.Evaluate(ctx, governance.Request{Action: name, Arguments: args, SessionID: sessionID})
		if err != nil {
			return Observation{}, fmt.Errorf("policy check for %s: %w", name, err)
		}
		if res.Effect == governance.EffectDeny {
			return Observation{Error: "denied by policy: " + res.Reason}, nil
		}
	}

	status, err := e.handlers[capability](ctx, args)
	if err == nil {
		return Observation{Status: status}, nil
	}

	var navErr *NavigationError
	if errors.As(err, &navErr) && e.opts.FatalNavigation {
		return Observation{}, err
	}
	return Observation{Error: err.Error()}, nil
}

func (e *Executor) openWebBrowser(ctx context.Context, _ map[string]any) (string, error) {
	if e.browser.HasPage() {
		return "already open", nil
	}
	if err := e.browser.Start(ctx); err != nil {
		return "", err
	}
	return "opened", nil
}

func (e *Executor) gotoURL(ctx context.Context, args map[string]any) (string, error) {
	target, ok := stringArg(args, "url")
	if !ok {
		return "", &MissingArgumentError{Capability: GotoURL, Argument: "url"}
	}
	if err := validateURL(target); err != nil {
		return "", err
	}
	if err := e.browser.Navigate(ctx, target, e.opts.NavigationTimeout); err != nil {
		return "", &NavigationError{URL: target, Err: err}
	}
	return "navigated to " + target, nil
}

func (e *Executor) clickElement(ctx context.Context, args map[string]any) (string, error) {
	selector, ok := stringArg(args, "selector")
	if !ok {
		return "", &MissingArgumentError{Capability: ClickElement, Argument: "selector"}
	}
	if err := e.browser.Click(ctx, selector); err != nil {
		return "", fmt.Errorf("click %s: %w", selector, err)
	}
	return "clicked " + selector, nil
}

func (e *Executor) typeText(ctx context.Context, args map[string]any) (string, error) {
	selector, ok := stringArg(args, "selector")
	if !ok {
		return "", &MissingArgumentError{Capability: TypeText, Argument: "selector"}
	}
	text, _ := stringArg(args, "text")
	if err := e.browser.Fill(ctx, selector, text); err != nil {
		return "", fmt.Errorf("fill %s: %w", selector, err)
	}
	return fmt.Sprintf("filled %s with %s", selector, text), nil
}

// stringArg reads a non-empty argument. Non-string JSON values are
// rendered with fmt so a numeric selector still works.
func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", false
	}
	s, isString := v.(string)
	if !isString {
		s = fmt.Sprint(v)
	}
	if s == "" {
		return "", false
	}
	return s, true
}

func validateURL(raw string) error {
	invalid := func(reason string) error {
		return &InvalidArgumentError{Capability: GotoURL, Argument: "url", Reason: reason}
	}
	if strings.ContainsAny(raw, " \t\n") {
		return invalid("url cannot contain spaces")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return invalid(err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("url must start with http:// or https://")
	}
	if u.Host == "" {
		return invalid("url has no host")
	}
	return nil
}
