package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rahul/aitester/internal/capture"
	"github.com/rahul/aitester/internal/governance"
	"github.com/rahul/aitester/internal/observability"
	"github.com/rahul/aitester/internal/planner"
	"github.com/rahul/aitester/internal/planner/plannertest"
	"github.com/rahul/aitester/internal/tools"
	"github.com/rahul/aitester/internal/tools/toolstest"
	"github.com/rahul/aitester/internal/transcript"
)

type harness struct {
	browser  *toolstest.Browser
	script   *plannertest.Scripted
	executor *tools.Executor
	dir      string
	logs     *observer.ObservedLogs
}

func newHarness(t *testing.T, steps ...plannertest.Step) *harness {
	t.Helper()
	b := toolstest.New()
	return &harness{
		browser:  b,
		script:   plannertest.New(steps...),
		executor: tools.NewExecutor(b, tools.ExecutorOptions{FatalNavigation: true}),
		dir:      t.TempDir(),
	}
}

func (h *harness) controller(opts Options) *Controller {
	core, logs := observer.New(zap.DebugLevel)
	h.logs = logs
	opts.CaptureDir = h.dir
	opts.Logger = observability.FromZap(zap.New(core))
	return NewController(h.script, h.executor, opts)
}

func (h *harness) run(t *testing.T, instruction string) (*Session, error) {
	t.Helper()
	return h.controller(Options{}).Run(context.Background(), instruction)
}

func gotoReply(url string) plannertest.Step {
	return plannertest.Reply(transcript.ActionRequest("goto_url", map[string]any{"url": url}))
}

func clickReply(selector string) plannertest.Step {
	return plannertest.Reply(transcript.ActionRequest("click_element", map[string]any{"selector": selector}))
}

func textReply(text string) plannertest.Step {
	return plannertest.Reply(transcript.Text(text))
}

func TestRun_ScenarioA_Completed(t *testing.T) {
	h := newHarness(t,
		gotoReply("https://example.com"),
		textReply("Done, loaded example.com."),
	)

	sess, err := h.run(t, "Open example.com")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, sess.Status)
	assert.Equal(t, 1, sess.StepCount)
	assert.Equal(t, "Done, loaded example.com.", sess.FinalText)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "https://example.com", h.browser.URL)

	require.Len(t, sess.Artifacts, 1)
	assert.Equal(t, filepath.Join(h.dir, "step_1.png"), sess.Artifacts[0].ImagePath)
	_, err = os.Stat(sess.Artifacts[0].HTMLPath)
	assert.NoError(t, err)

	turns := sess.Transcript.Snapshot()
	require.Len(t, turns, 4)
	assert.Equal(t, "Open example.com (Browser is ready to use.)", turns[0].Parts[0].Text)
	assert.Equal(t, transcript.RoleModel, turns[1].Role)
	assert.Equal(t, transcript.RoleUser, turns[2].Role)
	assert.Contains(t, turns[2].Parts[0].Text, "Executed goto_url")
	assert.Equal(t, transcript.KindImage, turns[2].Parts[1].Kind)

	require.Len(t, h.script.Decls, 2)
	assert.Len(t, h.script.Decls[0], len(tools.Capabilities))
	assert.Len(t, h.script.Requests[1], 3, "second call sees seed, reply and feedback")

	assert.Equal(t, 1, h.browser.Starts)
	assert.Equal(t, 1, h.browser.Closes)
}

func TestRun_ScenarioB_UnknownCapability(t *testing.T) {
	h := newHarness(t, plannertest.Reply(transcript.ActionRequest("delete_cookies", map[string]any{})))

	sess, err := h.run(t, "Clear cookies")
	require.NoError(t, err)

	assert.Equal(t, StatusAborted, sess.Status)
	assert.Equal(t, 0, sess.StepCount)
	assert.Contains(t, sess.TerminationReason, "delete_cookies")
	assert.Equal(t, 1, h.browser.Closes)
	assert.NotContains(t, h.browser.Calls, "navigate")
}

func TestRun_ScenarioC_StepLimit(t *testing.T) {
	var steps []plannertest.Step
	for i := 0; i < MaxSteps; i++ {
		steps = append(steps, clickReply("#next"))
	}
	h := newHarness(t, steps...)

	sess, err := h.run(t, "Keep clicking next")
	require.NoError(t, err)

	assert.Equal(t, StatusStepLimitReached, sess.Status)
	assert.Equal(t, MaxSteps, sess.StepCount)
	assert.Equal(t, MaxSteps, h.script.Calls())
	assert.Len(t, sess.Artifacts, MaxSteps)
	assert.Equal(t, 1, h.browser.Closes)
}

func TestRun_EmptyReplyAborts(t *testing.T) {
	for name, step := range map[string]plannertest.Step{
		"no parts":   plannertest.Reply(),
		"only image": plannertest.Reply(transcript.Image("image/png", []byte{1})),
		"nil parts":  {Reply: transcript.Turn{Role: transcript.RoleModel}},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, step)
			sess, err := h.run(t, "do something")
			require.NoError(t, err)
			assert.Equal(t, StatusAborted, sess.Status)
			assert.Equal(t, EmptyReplyReason, sess.TerminationReason)
			assert.Equal(t, 0, sess.StepCount)
		})
	}
}

func TestRun_UnknownAfterTextStillAborts(t *testing.T) {
	h := newHarness(t, plannertest.Reply(
		transcript.Text("I will clear the cookies."),
		transcript.ActionRequest("delete_cookies", nil),
	))
	sess, err := h.run(t, "Clear cookies")
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, sess.Status)
	assert.Contains(t, sess.TerminationReason, "delete_cookies")
}

func TestRun_PlannerErrorFirstIterationClosesOnce(t *testing.T) {
	cause := &planner.Error{Provider: "scripted", Op: "plan", StatusCode: 503, Err: errors.New("unavailable")}
	h := newHarness(t, plannertest.Fail(cause))

	sess, err := h.run(t, "Open example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitPlanner, ExitCode(err))

	assert.Equal(t, StatusAborted, sess.Status)
	assert.Equal(t, 0, sess.StepCount)
	assert.Equal(t, 1, h.browser.Starts)
	assert.Equal(t, 1, h.browser.Closes)
}

func TestRun_BrowserStartFailureStillCloses(t *testing.T) {
	h := newHarness(t, textReply("unused"))
	h.browser.StartErr = errors.New("chrome not found")

	_, err := h.run(t, "Open example.com")
	require.Error(t, err)
	assert.Equal(t, ExitTargetApp, ExitCode(err))
	assert.Equal(t, 1, h.browser.Closes)
	assert.Equal(t, 0, h.script.Calls())
}

func TestRun_FatalNavigation(t *testing.T) {
	h := newHarness(t, gotoReply("https://unreachable.test"))
	h.browser.NavigateErr = toolstest.ErrTimeout

	sess, err := h.run(t, "Open the site")
	var navErr *tools.NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, ExitTargetApp, ExitCode(err))
	assert.Equal(t, StatusAborted, sess.Status)
	assert.Equal(t, 0, sess.StepCount)
	assert.Equal(t, 1, h.browser.Closes)
}

func TestRun_RecoverableNavigation(t *testing.T) {
	h := newHarness(t,
		gotoReply("https://unreachable.test"),
		textReply("The site is down."),
	)
	h.executor = tools.NewExecutor(h.browser, tools.ExecutorOptions{FatalNavigation: false})
	h.browser.NavigateErr = toolstest.ErrTimeout

	sess, err := h.run(t, "Open the site")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sess.Status)
	assert.Equal(t, 1, sess.StepCount)

	feedback := sess.Transcript.Snapshot()[2].Parts[0].Text
	assert.Contains(t, feedback, "ERR_TIMED_OUT")
}

func TestRun_ClickFailureIsObservation(t *testing.T) {
	h := newHarness(t,
		clickReply("#missing"),
		textReply("Could not find the button."),
	)
	h.browser.Selectors = map[string]bool{"#present": true}

	sess, err := h.run(t, "Click the button")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sess.Status)
	assert.Equal(t, 1, sess.StepCount)

	feedback := sess.Transcript.Snapshot()[2].Parts[0].Text
	assert.Contains(t, feedback, "error: click #missing")

	warn := h.logs.FilterMessage(string(observability.EventTypeToolResult)).All()
	require.Len(t, warn, 1)
	assert.Equal(t, "warn", warn[0].Level.String())
}

func TestRun_PolicyDenyIsObservation(t *testing.T) {
	h := newHarness(t,
		gotoReply("https://admin.internal.corp/login"),
		textReply("Blocked."),
	)
	engine := governance.NewDefaultPolicyEngine()
	engine.DenyHost("internal.corp")
	h.executor.WithPolicy(engine)

	sess, err := h.run(t, "Open the admin page")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sess.Status)
	assert.Empty(t, h.browser.URL)
	assert.Contains(t, sess.Transcript.Snapshot()[2].Parts[0].Text, "denied by policy")
}

func TestRun_ArtifactFailureIsFatal(t *testing.T) {
	h := newHarness(t, gotoReply("https://example.com"))
	h.browser.ScreenshotErr = errors.New("target closed")

	sess, err := h.run(t, "Open example.com")
	var artErr *capture.ArtifactError
	require.ErrorAs(t, err, &artErr)
	assert.Equal(t, ExitFileSystem, ExitCode(err))
	assert.Equal(t, 0, sess.StepCount)
	assert.Equal(t, 1, h.browser.Closes)
}

func TestRun_InvalidReplyIsPlannerError(t *testing.T) {
	h := newHarness(t, plannertest.Reply(transcript.ActionResult("goto_url", nil)))
	_, err := h.run(t, "Open example.com")
	var perr *planner.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "validate reply", perr.Op)
}

func TestRun_CancelledContext(t *testing.T) {
	h := newHarness(t, textReply("never"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sess, err := h.controller(Options{}).Run(ctx, "Open example.com")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ExitInterrupted, ExitCode(err))
	assert.Equal(t, StatusAborted, sess.Status)
	assert.Equal(t, 0, h.script.Calls())
	assert.Equal(t, 1, h.browser.Closes)
}

func TestRun_FirstKnownActionOnly(t *testing.T) {
	h := newHarness(t,
		plannertest.Reply(
			transcript.Text("Typing then clicking."),
			transcript.ActionRequest("type_text", map[string]any{"selector": "#q", "text": "golang"}),
			transcript.ActionRequest("click_element", map[string]any{"selector": "#go"}),
		),
		textReply("Searched."),
	)

	sess, err := h.run(t, "Search for golang")
	require.NoError(t, err)
	assert.Equal(t, 1, sess.StepCount)
	assert.Equal(t, "golang", h.browser.Filled["#q"])
	assert.NotContains(t, h.browser.Calls, "click #go")
	assert.Equal(t, "type_text", sess.Artifacts[0].ActionName)

	reasoning := h.logs.FilterMessage(string(observability.EventTypeReasoning)).All()
	assert.Len(t, reasoning, 1)
}

func TestRun_TranscriptIsAppendOnly(t *testing.T) {
	h := newHarness(t,
		gotoReply("https://example.com"),
		clickReply("#more"),
		textReply("Done."),
	)

	var early []transcript.Turn
	opts := Options{OnStep: func(sess *Session, art capture.Artifact, obs tools.Observation) {
		if art.StepIndex == 1 {
			early = sess.Transcript.Snapshot()
		}
	}}
	sess, err := h.controller(opts).Run(context.Background(), "Open example.com and click more")
	require.NoError(t, err)

	final := sess.Transcript.Snapshot()
	require.Len(t, early, 3)
	require.Len(t, final, 6)
	assert.Equal(t, early, final[:len(early)])
}

func TestRun_DeterministicReplay(t *testing.T) {
	script := []plannertest.Step{
		gotoReply("https://example.com"),
		clickReply("#more"),
		plannertest.Reply(transcript.ActionRequest("type_text", map[string]any{"selector": "#q"})),
		textReply("All done."),
	}

	first := newHarness(t, script...)
	s1, err := first.run(t, "Explore")
	require.NoError(t, err)

	second := newHarness(t, script...)
	s2, err := second.run(t, "Explore")
	require.NoError(t, err)

	assert.Equal(t, s1.Status, s2.Status)
	assert.Equal(t, s1.StepCount, s2.StepCount)
	assert.Equal(t, s1.FinalText, s2.FinalText)
	assert.Equal(t, s1.TerminationReason, s2.TerminationReason)
	assert.Equal(t, first.script.Requests, second.script.Requests)
	assert.NotEqual(t, s1.ID, s2.ID)
}

func TestRun_PreambleAndActionResults(t *testing.T) {
	prompts := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(prompts, "rules.md"), []byte("Never submit forms."), 0644))

	h := newHarness(t, plannertest.Reply(transcript.ActionRequest("open_web_browser", nil)), textReply("ok"))
	sess, err := h.controller(Options{Prompts: NewPromptManager(prompts), ActionResults: true}).Run(context.Background(), "Look around")
	require.NoError(t, err)

	turns := sess.Transcript.Snapshot()
	assert.Equal(t, "Never submit forms.\n\nLook around (Browser is ready to use.)", turns[0].Parts[0].Text)
	require.Len(t, turns[2].Parts, 3)
	assert.Equal(t, "already open", turns[2].Parts[2].Observation["status"])
}

func TestRun_SessionEventsLogged(t *testing.T) {
	h := newHarness(t, textReply("nothing to do"))
	_, err := h.run(t, "noop")
	require.NoError(t, err)

	events := h.logs.FilterMessage(string(observability.EventTypeSession)).All()
	require.Len(t, events, 2)
	end := events[1].ContextMap()["data"].(map[string]any)
	assert.Equal(t, string(StatusCompleted), end["state"])
}
