package transcript

import (
	"fmt"
	"sync"
)

// Role identifies who produced a Turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// PartKind tags the variant held by a Part.
type PartKind string

const (
	KindText          PartKind = "text"
	KindImage         PartKind = "image"
	KindActionRequest PartKind = "action_request"
	KindActionResult  PartKind = "action_result"
)

// Part is one element of a Turn. Only the fields belonging to Kind are set.
type Part struct {
	Kind PartKind `json:"kind"`

	Text string `json:"text,omitempty"`

	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"`

	Name        string         `json:"name,omitempty"`
	Arguments   map[string]any `json:"arguments,omitempty"`
	Observation map[string]any `json:"observation,omitempty"`
}

func Text(content string) Part {
	return Part{Kind: KindText, Text: content}
}

func Image(mimeType string, data []byte) Part {
	return Part{Kind: KindImage, MIMEType: mimeType, Data: data}
}

func ActionRequest(name string, args map[string]any) Part {
	if args == nil {
		args = map[string]any{}
	}
	return Part{Kind: KindActionRequest, Name: name, Arguments: args}
}

func ActionResult(name string, observation map[string]any) Part {
	if observation == nil {
		observation = map[string]any{}
	}
	return Part{Kind: KindActionResult, Name: name, Observation: observation}
}

// Turn is one role-tagged exchange unit with the planning service.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Validate checks that each part kind is allowed for the turn's role.
func (t Turn) Validate() error {
	switch t.Role {
	case RoleUser, RoleModel:
	default:
		return fmt.Errorf("unknown role %q", t.Role)
	}
	for i, p := range t.Parts {
		switch p.Kind {
		case KindText, KindImage:
		case KindActionRequest:
			if t.Role != RoleModel {
				return fmt.Errorf("part %d: action request in %s turn", i, t.Role)
			}
		case KindActionResult:
			if t.Role != RoleUser {
				return fmt.Errorf("part %d: action result in %s turn", i, t.Role)
			}
		default:
			return fmt.Errorf("part %d: unknown kind %q", i, p.Kind)
		}
	}
	return nil
}

// Transcript is the append-only log of turns for one session. The
// planning service is stateless, so every call replays the whole log.
type Transcript struct {
	mu    sync.RWMutex
	turns []Turn
}

func New() *Transcript {
	return &Transcript{}
}

// Append stores a deep copy of turn; later changes to the caller's value
// are not visible in the log.
func (t *Transcript) Append(turn Turn) error {
	if err := turn.Validate(); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, cloneTurn(turn))
	return nil
}

// Snapshot returns the ordered turns. The result is a copy and may be
// modified freely.
func (t *Transcript) Snapshot() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Turn, len(t.turns))
	for i, turn := range t.turns {
		out[i] = cloneTurn(turn)
	}
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

func cloneTurn(t Turn) Turn {
	parts := make([]Part, len(t.Parts))
	for i, p := range t.Parts {
		parts[i] = clonePart(p)
	}
	return Turn{Role: t.Role, Parts: parts}
}

func clonePart(p Part) Part {
	out := p
	if p.Data != nil {
		out.Data = append([]byte(nil), p.Data...)
	}
	if p.Arguments != nil {
		out.Arguments = CloneMap(p.Arguments)
	}
	if p.Observation != nil {
		out.Observation = CloneMap(p.Observation)
	}
	return out
}

// CloneMap deep-copies the JSON-like values found in tool arguments.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		s := make([]any, len(val))
		for i, e := range val {
			s[i] = cloneValue(e)
		}
		return s
	case []string:
		return append([]string(nil), val...)
	case []byte:
		return append([]byte(nil), val...)
	default:
		return val
	}
}
