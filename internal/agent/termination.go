package agent

import (
	"github.com/rahul/aitester/internal/tools"
	"github.com/rahul/aitester/internal/transcript"
)

type DecisionKind int

const (
	Continue DecisionKind = iota
	Finished
	Abort
)

func (k DecisionKind) String() string {
	switch k {
	case Continue:
		return "continue"
	case Finished:
		return "finished"
	default:
		return "abort"
	}
}

// EmptyReplyReason is the abort reason for a reply with nothing actionable.
const EmptyReplyReason = "empty or unparseable model reply"

// Decision is the verdict on one model turn. Action is set for Continue,
// Text for Finished and Reason for Abort.
type Decision struct {
	Kind   DecisionKind
	Action transcript.Part
	Text   string
	Reason string
}

// Classify decides what a model turn asks for. A known action wins over
// everything else and only the first one is acted on; an unknown action
// aborts; otherwise the first text part is the final answer.
func Classify(turn transcript.Turn) Decision {
	var unknown *transcript.Part
	var text *transcript.Part

	for i := range turn.Parts {
		p := &turn.Parts[i]
		switch p.Kind {
		case transcript.KindActionRequest:
			if tools.IsKnown(p.Name) {
				return Decision{Kind: Continue, Action: *p}
			}
			if unknown == nil {
				unknown = p
			}
		case transcript.KindText:
			if text == nil {
				text = p
			}
		}
	}

	switch {
	case unknown != nil:
		return Decision{Kind: Abort, Reason: (&tools.CapabilityNotFoundError{Name: unknown.Name}).Error()}
	case text != nil:
		return Decision{Kind: Finished, Text: text.Text}
	default:
		return Decision{Kind: Abort, Reason: EmptyReplyReason}
	}
}
