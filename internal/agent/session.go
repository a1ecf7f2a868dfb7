// Package agent runs one instruction as a bounded request/execute/observe
// loop between a planner and a browser.
package agent

import (
	"github.com/google/uuid"

	"github.com/rahul/aitester/internal/capture"
	"github.com/rahul/aitester/internal/observability"
	"github.com/rahul/aitester/internal/transcript"
)

// MaxSteps caps the number of executed actions per session.
const MaxSteps = 10

// ReadinessNote is appended to the instruction in the seed turn.
const ReadinessNote = " (Browser is ready to use.)"

type Status string

const (
	StatusRunning          Status = "RUNNING"
	StatusCompleted        Status = "COMPLETED"
	StatusAborted          Status = "ABORTED"
	StatusStepLimitReached Status = "STEP_LIMIT_REACHED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// Session is the state of one run. Only the Controller mutates it.
type Session struct {
	ID                string
	Instruction       string
	Status            Status
	StepCount         int
	Transcript        *transcript.Transcript
	FinalText         string
	TerminationReason string
	Artifacts         []capture.Artifact
}

func newSession(instruction string) *Session {
	return &Session{
		ID:          uuid.NewString(),
		Instruction: instruction,
		Status:      StatusRunning,
		Transcript:  transcript.New(),
	}
}

// finish moves a running session to a terminal status. Terminal states are
// sinks, so later calls are ignored.
func (s *Session) finish(status Status, finalText, reason string) {
	if s.Status.Terminal() {
		return
	}
	s.Status = status
	s.FinalText = finalText
	s.TerminationReason = reason
}

// Summary is the final status line: outcome, step count and the final
// answer or termination reason.
func (s *Session) Summary() string {
	detail := s.FinalText
	if detail == "" {
		detail = s.TerminationReason
	}
	return observability.FinalLine(s.ID, string(s.Status), s.StepCount, detail)
}
