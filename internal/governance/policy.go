package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a browser action to be evaluated.
type Request struct {
	Action    string
	Arguments map[string]any
	SessionID string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates browser actions against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine is a basic implementation of PolicyEngine.
type DefaultPolicyEngine struct {
	DeniedActions map[string]bool
	DeniedHosts   map[string]bool
	DeniedRegex   []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedActions: make(map[string]bool),
		DeniedHosts:   make(map[string]bool),
		DeniedRegex:   make([]*regexp.Regexp, 0),
	}
}

func (e *DefaultPolicyEngine) DenyAction(name string) {
	e.DeniedActions[name] = true
}

// DenyHost blocks navigation to host and any of its subdomains.
func (e *DefaultPolicyEngine) DenyHost(host string) {
	e.DeniedHosts[strings.ToLower(strings.TrimSpace(host))] = true
}

// DenyArguments blocks any action whose JSON-encoded arguments match pattern.
func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedActions[req.Action] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("action '%s' is restricted by policy", req.Action),
		}, nil
	}

	if raw, ok := req.Arguments["url"].(string); ok && len(e.DeniedHosts) > 0 {
		if u, err := url.Parse(raw); err == nil {
			host := strings.ToLower(u.Hostname())
			for denied := range e.DeniedHosts {
				if host == denied || strings.HasSuffix(host, "."+denied) {
					return Result{
						Effect: EffectDeny,
						Reason: fmt.Sprintf("host '%s' is restricted by policy", host),
					}, nil
				}
			}
		}
	}

	if len(e.DeniedRegex) > 0 {
		encoded, err := json.Marshal(req.Arguments)
		if err != nil {
			return Result{}, fmt.Errorf("encode arguments: %w", err)
		}
		for _, re := range e.DeniedRegex {
			if re.Match(encoded) {
				return Result{
					Effect: EffectDeny,
					Reason: fmt.Sprintf("arguments match restricted pattern: %s", re.String()),
				}, nil
			}
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "approved by default policy",
	}, nil
}

// AuditedEngine reports every decision of the wrapped engine.
type AuditedEngine struct {
	Engine PolicyEngine
	Record func(req Request, res Result)
}

func Audit(engine PolicyEngine, record func(req Request, res Result)) *AuditedEngine {
	return &AuditedEngine{Engine: engine, Record: record}
}

func (a *AuditedEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	res, err := a.Engine.Evaluate(ctx, req)
	if err == nil && a.Record != nil {
		a.Record(req, res)
	}
	return res, err
}
