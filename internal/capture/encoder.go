// Package capture turns the browser's post-action state into the feedback
// turn for the planning service and keeps per-step debugging artifacts.
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rahul/aitester/internal/tools"
	"github.com/rahul/aitester/internal/transcript"
)

// DefaultDir is the relative directory artifacts are written to.
const DefaultDir = "captures"

// Snapshotter is the part of tools.Browser the encoder reads from.
type Snapshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
	Content(ctx context.Context) (string, error)
}

// Artifact records what was captured for one executed action.
type Artifact struct {
	StepIndex          int            `json:"step_index"`
	ActionName         string         `json:"action_name"`
	Arguments          map[string]any `json:"arguments"`
	ImagePath          string         `json:"image_path"`
	HTMLPath           string         `json:"html_path"`
	ObservationSummary string         `json:"observation_summary"`
	CapturedAt         time.Time      `json:"captured_at"`
}

// ArtifactError is a failure to capture or persist page state.
type ArtifactError struct {
	Step int
	Op   string
	Path string
	Err  error
}

func (e *ArtifactError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("step %d: %s %s: %v", e.Step, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("step %d: %s: %v", e.Step, e.Op, e.Err)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// Encoder builds feedback turns. Its step counter starts at 1, never
// repeats, and is consumed even when capture fails.
type Encoder struct {
	source        Snapshotter
	dir           string
	step          int
	actionResults bool
	now           func() time.Time
}

func NewEncoder(source Snapshotter, dir string) *Encoder {
	if dir == "" {
		dir = DefaultDir
	}
	return &Encoder{source: source, dir: dir, now: time.Now}
}

// WithActionResults appends an ActionResult part to every feedback turn.
func (e *Encoder) WithActionResults(enabled bool) *Encoder {
	e.actionResults = enabled
	return e
}

// Steps returns how many step numbers have been handed out.
func (e *Encoder) Steps() int {
	return e.step
}

// Encode captures the page after action name ran with args and produced obs.
func (e *Encoder) Encode(ctx context.Context, name string, args map[string]any, obs tools.Observation) (transcript.Turn, Artifact, error) {
	e.step++
	n := e.step

	img, err := e.source.Screenshot(ctx)
	if err != nil {
		return transcript.Turn{}, Artifact{}, &ArtifactError{Step: n, Op: "screenshot", Err: err}
	}
	html, err := e.source.Content(ctx)
	if err != nil {
		return transcript.Turn{}, Artifact{}, &ArtifactError{Step: n, Op: "read document", Err: err}
	}

	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return transcript.Turn{}, Artifact{}, &ArtifactError{Step: n, Op: "create directory", Path: e.dir, Err: err}
	}
	imagePath := filepath.Join(e.dir, fmt.Sprintf("step_%d.png", n))
	if err := os.WriteFile(imagePath, img, 0644); err != nil {
		return transcript.Turn{}, Artifact{}, &ArtifactError{Step: n, Op: "write", Path: imagePath, Err: err}
	}
	htmlPath := filepath.Join(e.dir, fmt.Sprintf("step_%d.html", n))
	if err := os.WriteFile(htmlPath, []byte(html), 0644); err != nil {
		return transcript.Turn{}, Artifact{}, &ArtifactError{Step: n, Op: "write", Path: htmlPath, Err: err}
	}

	pageURL, _ := args["url"].(string)
	summary := Summarize(html, pageURL)
	if summary == "" {
		summary = obs.String()
	}

	parts := []transcript.Part{
		transcript.Text(Feedback(name, obs)),
		transcript.Image("image/png", img),
	}
	if e.actionResults {
		parts = append(parts, transcript.ActionResult(name, obs.Fields()))
	}

	artifact := Artifact{
		StepIndex:          n,
		ActionName:         name,
		Arguments:          transcript.CloneMap(args),
		ImagePath:          imagePath,
		HTMLPath:           htmlPath,
		ObservationSummary: summary,
		CapturedAt:         e.now(),
	}
	return transcript.Turn{Role: transcript.RoleUser, Parts: parts}, artifact, nil
}

// Feedback is the sentence that tells the model which action ran and how it went.
func Feedback(name string, obs tools.Observation) string {
	return fmt.Sprintf("Executed %s. Observation: %s. Here is a screenshot of the updated page.", name, obs)
}
