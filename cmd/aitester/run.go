package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rahul/aitester/internal/agent"
	"github.com/rahul/aitester/internal/capture"
	"github.com/rahul/aitester/internal/observability"
	"github.com/rahul/aitester/internal/tools"
	"github.com/rahul/aitester/pkg/config"
)

type runFlags struct {
	provider string
	model    string
	headless bool
	captures string
	backend  string
	noBanner bool
}

// overrides returns only the flags the user actually set.
func (f *runFlags) overrides(cmd *cobra.Command) map[string]any {
	out := map[string]any{}
	set := func(flag, key string, value any) {
		if cmd.Flags().Changed(flag) {
			out[key] = value
		}
	}
	set("provider", "planner.provider", f.provider)
	set("model", "planner.model", f.model)
	set("headless", "browser.headless", f.headless)
	set("captures", "capture.dir", f.captures)
	set("backend", "browser.backend", f.backend)
	return out
}

func (f *runFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.provider, "provider", "", "planner provider: gemini or openai")
	cmd.Flags().StringVar(&f.model, "model", "", "planner model name")
	cmd.Flags().BoolVar(&f.headless, "headless", false, "run the browser without a window")
	cmd.Flags().StringVar(&f.captures, "captures", "", "directory for step artifacts")
	cmd.Flags().StringVar(&f.backend, "backend", "", "browser backend: chromedp or rod")
	cmd.Flags().BoolVar(&f.noBanner, "no-banner", false, "skip the startup banner")
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <instruction>",
		Short: "Run one instruction as a bounded browser session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instruction := strings.TrimSpace(strings.Join(args, " "))
			if instruction == "" {
				return &exitError{code: agent.ExitValidation, err: &config.ValidationError{Field: "instruction", Reason: "must not be empty"}}
			}

			cfg, err := config.Load(opts.configFile, flags.overrides(cmd))
			if err != nil {
				return &exitError{code: agent.ExitValidation, err: err}
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return &exitError{code: agent.ExitValidation, err: err}
			}
			defer func() { _ = logger.Sync() }()

			if !flags.noBanner {
				observability.PrintBanner(opts.out)
			}

			onStep := func(sess *agent.Session, art capture.Artifact, obs tools.Observation) {
				observability.PrintStep(opts.out, art.StepIndex, agent.MaxSteps, art.ActionName, obs.String())
			}
			controller, err := newController(cmd.Context(), cfg, logger, onStep)
			if err != nil {
				return &exitError{code: agent.ExitCode(err), err: err}
			}

			sess, err := controller.Run(cmd.Context(), instruction)
			if err != nil {
				if sess != nil {
					observability.PrintFinal(opts.out, sess.Summary(), false)
				}
				return &exitError{code: agent.ExitCode(err), err: fmt.Errorf("session failed: %w", err)}
			}

			code := agent.StatusExitCode(sess.Status)
			observability.PrintFinal(opts.out, sess.Summary(), code == agent.ExitOK)
			if code != agent.ExitOK {
				return &exitError{code: code}
			}
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}
