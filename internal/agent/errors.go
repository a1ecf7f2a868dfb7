package agent

import (
	"context"
	"errors"

	"github.com/rahul/aitester/internal/capture"
	"github.com/rahul/aitester/internal/planner"
	"github.com/rahul/aitester/internal/tools"
	"github.com/rahul/aitester/pkg/config"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitTargetApp  = 1
	ExitPlanner    = 2
	ExitFileSystem = 3
	ExitValidation = 4
	ExitAborted    = 5

	// ExitInterrupted follows the shell convention for SIGINT.
	ExitInterrupted = 130
)

// ExitCode maps a fatal error to the process exit code. Cancellation wins
// over the error class it surfaced through. Unclassified errors, including
// browser failures, count as target application errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var plannerErr *planner.Error
	var navErr *tools.NavigationError
	var artErr *capture.ArtifactError
	var cfgErr *config.ValidationError
	switch {
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &plannerErr):
		return ExitPlanner
	case errors.As(err, &navErr):
		return ExitTargetApp
	case errors.As(err, &artErr):
		return ExitFileSystem
	case errors.As(err, &cfgErr):
		return ExitValidation
	default:
		return ExitTargetApp
	}
}

// StatusExitCode maps a terminal status reached without a fatal error.
func StatusExitCode(s Status) int {
	if s == StatusAborted {
		return ExitAborted
	}
	return ExitOK
}
