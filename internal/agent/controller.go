package agent

import (
	"context"
	"fmt"

	"github.com/rahul/aitester/internal/capture"
	"github.com/rahul/aitester/internal/observability"
	"github.com/rahul/aitester/internal/planner"
	"github.com/rahul/aitester/internal/tools"
	"github.com/rahul/aitester/internal/transcript"
)

// StepFunc is called after every executed and captured action.
type StepFunc func(sess *Session, art capture.Artifact, obs tools.Observation)

type Options struct {
	CaptureDir    string
	ActionResults bool
	Prompts       *PromptManager
	Logger        *observability.Logger
	OnStep        StepFunc
}

// Controller runs sessions one at a time against a single executor.
type Controller struct {
	planner  planner.Planner
	executor *tools.Executor
	opts     Options
	logger   *observability.Logger
}

func NewController(p planner.Planner, executor *tools.Executor, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = observability.Nop()
	}
	return &Controller{planner: p, executor: executor, opts: opts, logger: logger}
}

// Run drives one instruction to a terminal status. COMPLETED, ABORTED and
// STEP_LIMIT_REACHED come back with a nil error. A non-nil error is fatal
// (planner failure, fatal navigation, artifact failure, cancellation); the
// session is still returned, marked ABORTED with the error as reason.
func (c *Controller) Run(ctx context.Context, instruction string) (*Session, error) {
	sess := newSession(instruction)

	preamble, err := c.opts.Prompts.Preamble()
	if err != nil {
		c.logger.Error(sess.ID, "prompt preamble unavailable, continuing without it", err)
		preamble = ""
	}
	seed := transcript.Turn{
		Role:  transcript.RoleUser,
		Parts: []transcript.Part{transcript.Text(SeedText(preamble, instruction))},
	}
	if err := sess.Transcript.Append(seed); err != nil {
		return c.fail(sess, err)
	}

	c.logger.LogSession(sess.ID, string(StatusRunning), map[string]any{
		"instruction": instruction,
		"planner":     c.planner.Name(),
	})

	defer func() {
		if err := c.executor.Close(); err != nil {
			c.logger.Error(sess.ID, "close browser", err)
		}
		observability.SetStatus(observability.PhaseIdle, "", 0, "")
	}()
	if err := c.executor.Start(ctx); err != nil {
		return c.fail(sess, fmt.Errorf("start browser: %w", err))
	}

	encoder := capture.NewEncoder(c.executor.Browser(), c.opts.CaptureDir).WithActionResults(c.opts.ActionResults)
	decls := tools.Declarations()

	for sess.StepCount < MaxSteps {
		if err := ctx.Err(); err != nil {
			return c.fail(sess, err)
		}
		step := sess.StepCount + 1

		observability.SetStatus(observability.PhasePlanning, sess.ID, step, "")
		reply, err := c.planner.Plan(ctx, decls, sess.Transcript.Snapshot())
		if err != nil {
			return c.fail(sess, err)
		}
		c.logger.LogLLM(sess.ID, step, c.planner.Name(), sess.Transcript.Len(), reply.Parts)
		if err := sess.Transcript.Append(reply); err != nil {
			return c.fail(sess, &planner.Error{Provider: c.planner.Name(), Op: "validate reply", Err: err})
		}

		decision := Classify(reply)
		switch decision.Kind {
		case Finished:
			sess.finish(StatusCompleted, decision.Text, "")
			c.logEnd(sess)
			return sess, nil
		case Abort:
			sess.finish(StatusAborted, "", decision.Reason)
			c.logEnd(sess)
			return sess, nil
		}

		action := decision.Action
		for _, p := range reply.Parts {
			if p.Kind == transcript.KindText && p.Text != "" {
				c.logger.LogReasoning(sess.ID, step, p.Text)
			}
		}

		observability.SetStatus(observability.PhaseActing, sess.ID, step, action.Name)
		c.logger.LogToolCall(sess.ID, step, action.Name, action.Arguments)
		obs, err := c.executor.Execute(ctx, sess.ID, action.Name, action.Arguments)
		if err != nil {
			return c.fail(sess, err)
		}
		c.logger.LogToolResult(sess.ID, step, action.Name, obs.Fields())

		feedback, art, err := encoder.Encode(ctx, action.Name, action.Arguments, obs)
		if err != nil {
			return c.fail(sess, err)
		}
		if err := sess.Transcript.Append(feedback); err != nil {
			return c.fail(sess, err)
		}
		sess.StepCount++
		sess.Artifacts = append(sess.Artifacts, art)
		c.logger.LogStep(sess.ID, art.StepIndex, art.ImagePath, art.HTMLPath, art.ObservationSummary)

		if c.opts.OnStep != nil {
			c.opts.OnStep(sess, art, obs)
		}
	}

	sess.finish(StatusStepLimitReached, "", fmt.Sprintf("reached the limit of %d steps", MaxSteps))
	c.logEnd(sess)
	return sess, nil
}

func (c *Controller) fail(sess *Session, err error) (*Session, error) {
	sess.finish(StatusAborted, "", err.Error())
	c.logger.Error(sess.ID, "session failed", err)
	c.logEnd(sess)
	return sess, err
}

func (c *Controller) logEnd(sess *Session) {
	c.logger.LogSession(sess.ID, string(sess.Status), map[string]any{
		"steps":      sess.StepCount,
		"final_text": sess.FinalText,
		"reason":     sess.TerminationReason,
	})
}
