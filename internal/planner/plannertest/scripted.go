// Package plannertest provides a scripted planner for loop tests.
package plannertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/rahul/aitester/internal/planner"
	"github.com/rahul/aitester/internal/tools"
	"github.com/rahul/aitester/internal/transcript"
)

var _ planner.Planner = (*Scripted)(nil)

// Step is one scripted reply. A non-nil Err is returned instead of Reply.
type Step struct {
	Reply transcript.Turn
	Err   error
}

// Scripted replays Steps in order and records every request it saw.
// Running past the script is a test failure surfaced as an error.
type Scripted struct {
	mu       sync.Mutex
	Steps    []Step
	Requests [][]transcript.Turn
	Decls    [][]tools.Declaration
}

func New(steps ...Step) *Scripted {
	return &Scripted{Steps: steps}
}

// Reply is shorthand for a model turn with the given parts.
func Reply(parts ...transcript.Part) Step {
	return Step{Reply: transcript.Turn{Role: transcript.RoleModel, Parts: parts}}
}

func Fail(err error) Step {
	return Step{Err: err}
}

func (s *Scripted) Name() string {
	return "scripted"
}

func (s *Scripted) Plan(ctx context.Context, decls []tools.Declaration, contents []transcript.Turn) (transcript.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return transcript.Turn{}, &planner.Error{Provider: s.Name(), Op: "plan", Err: err}
	}

	n := len(s.Requests)
	s.Requests = append(s.Requests, contents)
	s.Decls = append(s.Decls, decls)
	if n >= len(s.Steps) {
		return transcript.Turn{}, &planner.Error{Provider: s.Name(), Op: "plan", Err: fmt.Errorf("script exhausted after %d calls", n)}
	}
	step := s.Steps[n]
	if step.Err != nil {
		return transcript.Turn{}, step.Err
	}
	return step.Reply, nil
}

// Calls returns how many times Plan was invoked.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}
