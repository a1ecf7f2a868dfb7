package main

import (
	"context"
	"fmt"

	"github.com/rahul/aitester/internal/agent"
	"github.com/rahul/aitester/internal/governance"
	"github.com/rahul/aitester/internal/observability"
	"github.com/rahul/aitester/internal/planner"
	"github.com/rahul/aitester/internal/tools"
	"github.com/rahul/aitester/pkg/config"
)

func newLogger(cfg *config.Config) (*observability.Logger, error) {
	logger, err := observability.NewLogger(observability.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return nil, &config.ValidationError{Field: "log.level", Reason: err.Error()}
	}
	return logger, nil
}

func newBrowser(cfg *config.Config) tools.Browser {
	opts := tools.BrowserOptions{
		Headless:       cfg.Browser.Headless,
		ViewportWidth:  cfg.Browser.Viewport.Width,
		ViewportHeight: cfg.Browser.Viewport.Height,
		ActionTimeout:  cfg.Browser.ActionTimeout,
	}
	if cfg.Browser.Backend == "rod" {
		return tools.NewRodBrowser(opts, cfg.Browser.ControlURL)
	}
	return tools.NewChromeBrowser(opts)
}

// newPolicy builds the governance gate from config. Every decision is
// logged as a policy_check event.
func newPolicy(cfg *config.Config, logger *observability.Logger) (governance.PolicyEngine, error) {
	engine := governance.NewDefaultPolicyEngine()
	for _, name := range cfg.Policy.DenyActions {
		engine.DenyAction(name)
	}
	for _, host := range cfg.Policy.DenyHosts {
		engine.DenyHost(host)
	}
	for _, pattern := range cfg.Policy.DenyPatterns {
		if err := engine.DenyArguments(pattern); err != nil {
			return nil, &config.ValidationError{Field: "policy.deny_patterns", Reason: fmt.Sprintf("%q: %v", pattern, err)}
		}
	}
	return governance.Audit(engine, func(req governance.Request, res governance.Result) {
		logger.LogPolicyCheck(req.SessionID, req.Action, string(res.Effect), res.Reason)
	}), nil
}

func newPlanner(ctx context.Context, cfg *config.Config) (planner.Planner, error) {
	switch cfg.Planner.Provider {
	case "openai":
		return planner.NewOpenAI(planner.OpenAIOptions{
			APIKey:  cfg.Planner.APIKey,
			Model:   cfg.Planner.Model,
			BaseURL: cfg.Planner.BaseURL,
		})
	default:
		return planner.NewGemini(ctx, planner.GeminiOptions{
			APIKey:  cfg.Planner.APIKey,
			Model:   cfg.Planner.Model,
			BaseURL: cfg.Planner.BaseURL,
		})
	}
}

// newController wires one controller; onStep may be nil.
func newController(ctx context.Context, cfg *config.Config, logger *observability.Logger, onStep agent.StepFunc) (*agent.Controller, error) {
	p, err := newPlanner(ctx, cfg)
	if err != nil {
		return nil, &planner.Error{Provider: cfg.Planner.Provider, Op: "init", Err: err}
	}
	policy, err := newPolicy(cfg, logger)
	if err != nil {
		return nil, err
	}
	executor := tools.NewExecutor(newBrowser(cfg), tools.ExecutorOptions{
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		FatalNavigation:   cfg.Policy.FatalNavigation,
	}).WithPolicy(policy)

	return agent.NewController(p, executor, agent.Options{
		CaptureDir:    cfg.Capture.Dir,
		ActionResults: cfg.Planner.FunctionResponses,
		Prompts:       agent.NewPromptManager(cfg.Prompts.Dir),
		Logger:        logger,
		OnStep:        onStep,
	}), nil
}
