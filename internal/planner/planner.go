// Package planner adapts remote model APIs to the request/reply shape the
// agent loop depends on: the declared capabilities plus the full ordered
// transcript go out, one model turn comes back.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/aitester/internal/tools"
	"github.com/rahul/aitester/internal/transcript"
)

// Planner is the planning service. Implementations are stateless across
// calls; everything the model needs is in contents.
type Planner interface {
	Name() string
	Plan(ctx context.Context, decls []tools.Declaration, contents []transcript.Turn) (transcript.Turn, error)
}

// Error is a transport or protocol failure talking to the planning service.
// It is never turned into an observation.
type Error struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
	if hint := e.Hint(); hint != "" {
		msg += " (" + hint + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Hint explains common HTTP failures in operator terms.
func (e *Error) Hint() string {
	code := e.StatusCode
	text := ""
	if e.Err != nil {
		text = strings.ToLower(e.Err.Error())
	}
	switch {
	case code == 429 || strings.Contains(text, "429") || strings.Contains(text, "quota") || strings.Contains(text, "rate limit"):
		return "rate limit or quota exceeded; check your plan's usage"
	case code == 401 || code == 403 || strings.Contains(text, "401") || strings.Contains(text, "403"):
		return "authentication failed; check the API key"
	case code == 404 || strings.Contains(text, "404"):
		return "model not found; verify the model name and access"
	}
	return ""
}

func protocolError(provider, format string, args ...any) *Error {
	return &Error{Provider: provider, Op: "decode reply", Err: fmt.Errorf(format, args...)}
}
