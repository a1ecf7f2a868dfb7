package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rahul/aitester/internal/agent"
	"github.com/rahul/aitester/internal/capture"
	"github.com/rahul/aitester/internal/gateway"
	"github.com/rahul/aitester/internal/observability"
	"github.com/rahul/aitester/internal/tools"
	"github.com/rahul/aitester/pkg/config"
)

func newTelegramCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "telegram",
		Short: "Serve instructions received over Telegram, one session at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile, map[string]any{"gateways.telegram.enabled": true})
			if err != nil {
				return &exitError{code: agent.ExitValidation, err: err}
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return &exitError{code: agent.ExitValidation, err: err}
			}
			defer func() { _ = logger.Sync() }()

			observability.PrintBanner(opts.out)

			onStep := func(sess *agent.Session, art capture.Artifact, obs tools.Observation) {
				observability.PrintStep(opts.out, art.StepIndex, agent.MaxSteps, art.ActionName, obs.String())
			}
			controller, err := newController(cmd.Context(), cfg, logger, onStep)
			if err != nil {
				return &exitError{code: agent.ExitCode(err), err: err}
			}

			tg, err := gateway.NewTelegramGateway(cfg.Gateways.Telegram.Token, controller, cfg.Gateways.Telegram.AllowedChats, logger.Zap())
			if err != nil {
				return &exitError{code: agent.ExitValidation, err: err}
			}
			defer func() { _ = tg.Stop() }()

			logger.Zap().Info("telegram gateway started", zap.Int("allowed_chats", len(cfg.Gateways.Telegram.AllowedChats)))
			if err := tg.Start(cmd.Context()); err != nil {
				return &exitError{code: agent.ExitTargetApp, err: err}
			}
			logger.Zap().Info("telegram gateway stopped")
			return nil
		},
	}
}
