package observability

import (
	"fmt"
	"io"
	"sync"
	"time"
)

type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhasePlanning Phase = "PLANNING"
	PhaseActing   Phase = "ACTING"
)

// Snapshot is a point-in-time copy of the process status.
type Snapshot struct {
	Phase     Phase
	SessionID string
	Step      int
	Action    string
	Updated   time.Time
}

type systemStatus struct {
	mu  sync.RWMutex
	cur Snapshot
}

var globalStatus = &systemStatus{cur: Snapshot{Phase: PhaseIdle, Updated: time.Now()}}

// SetStatus updates the global system status.
func SetStatus(phase Phase, sessionID string, step int, action string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.cur = Snapshot{
		Phase:     phase,
		SessionID: sessionID,
		Step:      step,
		Action:    action,
		Updated:   time.Now(),
	}
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() Snapshot {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.cur
}

func (s Snapshot) String() string {
	if s.Phase == PhaseIdle {
		return fmt.Sprintf("%s since %s", s.Phase, s.Updated.Format("15:04:05"))
	}
	return fmt.Sprintf("%s session=%s step=%d action=%s", s.Phase, s.SessionID, s.Step, s.Action)
}

// PrintStep writes one progress line for an executed action.
func PrintStep(w io.Writer, step, maxSteps int, action, observation string) {
	line := fmt.Sprintf("[ %2d/%d ] %-16s %s", step, maxSteps, action, truncate(observation, termWidth()-30))
	if colorEnabled(w) {
		line = colorPurple + line + colorReset
	}
	termMu.Lock()
	defer termMu.Unlock()
	fmt.Fprintln(w, line)
}

// FinalLine renders the one-line outcome of a session.
func FinalLine(sessionID, status string, steps int, detail string) string {
	line := fmt.Sprintf("[ %s ] session %s finished after %d step(s)", status, sessionID, steps)
	if detail != "" {
		line += ": " + detail
	}
	return line
}

// PrintFinal writes the outcome line, highlighted by success.
func PrintFinal(w io.Writer, line string, ok bool) {
	if colorEnabled(w) {
		color := colorNeonGrn
		if !ok {
			color = colorNeonRed
		}
		line = colorBold + color + line + colorReset
	}
	termMu.Lock()
	defer termMu.Unlock()
	fmt.Fprintln(w, line)
}

func truncate(s string, n int) string {
	if n < 20 {
		n = 20
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
