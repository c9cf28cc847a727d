package workflow

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the coarse stage of a research session.
type Phase string

const (
	PhaseSearch    Phase = "SEARCH"
	PhaseSynthesis Phase = "SYNTHESIS"
	PhaseDone      Phase = "DONE"
)

// ActorID names a participant. The values are part of the wire contract with
// the transport layer and the actors' instructions, so they never change.
type ActorID string

const (
	ActorUser             ActorID = "user"
	ActorQueryPlanner     ActorID = "QueryPlanner"
	ActorSearch           ActorID = "SearchAgent"
	ActorValidator        ActorID = "Validator"
	ActorCritic           ActorID = "Critic"
	ActorSynthesis        ActorID = "SynthesisAgent"
	ActorReferenceChecker ActorID = "ReferenceConsistencyCritic"
	ActorFormatter        ActorID = "FormatterAgent"
)

// AllActors lists every routable actor in pipeline order.
var AllActors = []ActorID{
	ActorQueryPlanner,
	ActorSearch,
	ActorValidator,
	ActorCritic,
	ActorSynthesis,
	ActorReferenceChecker,
	ActorFormatter,
}

var searchActors = map[ActorID]bool{
	ActorQueryPlanner: true,
	ActorSearch:       true,
	ActorValidator:    true,
	ActorCritic:       true,
}

// IsSearchActor reports whether the actor belongs to the SEARCH phase.
func IsSearchActor(id ActorID) bool {
	return searchActors[id]
}

// Turn is one immutable entry of the session history.
type Turn struct {
	ID        uuid.UUID `json:"id"`
	ActorID   ActorID   `json:"actor_id"`
	Phase     Phase     `json:"phase"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTurn stamps a new turn with an id and the current time.
func NewTurn(actor ActorID, phase Phase, content string) Turn {
	return Turn{
		ID:        uuid.New(),
		ActorID:   actor,
		Phase:     phase,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// History is an append-only sequence of turns.
type History struct {
	turns []Turn
}

// Append adds a turn at the end. Existing turns are never touched.
func (h *History) Append(t Turn) {
	h.turns = append(h.turns, t)
}

func (h *History) Len() int {
	return len(h.turns)
}

// Last returns the most recent turn.
func (h *History) Last() (Turn, bool) {
	if len(h.turns) == 0 {
		return Turn{}, false
	}
	return h.turns[len(h.turns)-1], true
}

// Turns returns a copy so callers cannot rewrite history.
func (h *History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// LastFrom returns the most recent turn authored by actor.
func LastFrom(turns []Turn, actor ActorID) (Turn, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].ActorID == actor {
			return turns[i], true
		}
	}
	return Turn{}, false
}

// Decision is the controller's answer for the next step.
type Decision struct {
	Next      ActorID `json:"next,omitempty"`
	Terminate bool    `json:"terminate"`
	Reason    string  `json:"reason,omitempty"`
}

func route(next ActorID, reason string) Decision {
	return Decision{Next: next, Reason: reason}
}

func terminate(reason string) Decision {
	return Decision{Terminate: true, Reason: reason}
}
