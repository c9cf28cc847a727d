package workflow

import (
	"fmt"
	"strings"
	"sync"

	"literas-be/internal/pkg/logger"
)

const logModule = "WorkflowController"

// Controller is the phase state machine. After every appended turn the
// session asks it which actor speaks next. It owns the session state and is
// the only thing allowed to change it.
type Controller struct {
	mu        sync.RWMutex
	state     SessionState
	policy    GatePolicy
	processed int
	logger    logger.ILogger
}

// NewController returns a controller in the SEARCH phase with zeroed counters.
func NewController(policy GatePolicy, log logger.ILogger) *Controller {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Controller{
		state:  NewSessionState(),
		policy: policy,
		logger: log,
	}
}

// Reset puts the controller back to its start-of-session state.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = NewSessionState()
	c.processed = 0
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.clone()
}

// Phase returns the active phase.
func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Phase
}

// NextActor decides the next step from the history. The decision depends only
// on the last turn and the accumulated state, and asking twice for the same
// history returns the same decision without counting anything twice.
func (c *Controller) NextActor(history []Turn) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(history) == 0 {
		return route(ActorQueryPlanner, "bootstrap")
	}
	if len(history) == c.processed {
		return c.state.LastDecision
	}

	last := history[len(history)-1]
	var d Decision
	switch c.state.Phase {
	case PhaseSearch:
		d = c.decideSearch(last)
	case PhaseSynthesis:
		d = c.decideSynthesis(last, history)
	default:
		d = terminate("session already finished")
	}

	c.processed = len(history)
	c.state.LastDecision = d
	if d.Terminate {
		c.state.Phase = PhaseDone
	}

	c.logger.Debug(logModule, "Routing decision", map[string]interface{}{
		"last_actor": last.ActorID,
		"next":       d.Next,
		"terminate":  d.Terminate,
		"reason":     d.Reason,
		"phase":      c.state.Phase,
	})
	return d
}

func (c *Controller) decideSearch(last Turn) Decision {
	switch last.ActorID {
	case ActorUser:
		return route(ActorQueryPlanner, "bootstrap")
	case ActorQueryPlanner:
		return route(ActorSearch, "queries planned")
	case ActorSearch:
		return route(ActorValidator, "search finished")
	case ActorValidator:
		payload, err := DecodeValidatorPayload(last.Content)
		if err != nil {
			c.protocolViolation(err)
		} else {
			c.state.mergeScores(payload.ScoredPapers)
		}
		return route(ActorCritic, "papers scored")
	case ActorCritic:
		return c.decideCritic(last)
	default:
		return terminate(fmt.Sprintf("unexpected %s turn during %s", last.ActorID, PhaseSearch))
	}
}

func (c *Controller) decideCritic(last Turn) Decision {
	signal := MatchCriticSignal(last.Content)
	switch signal {
	case CriticRefine:
		return c.refine("critic requested refinement")
	case CriticProceed:
	default:
		c.protocolViolation(violation(ActorCritic, "expected exactly one of %s or %s, got %s",
			MarkerRefineSearch, MarkerProceedToSynthesis, signal))
		return c.refine("ambiguous critic signal treated as refine")
	}

	refs, err := DecodeCriticPayload(last.Content)
	if err != nil {
		c.protocolViolation(err)
		refs = nil
	}

	gate := EvaluateGate(c.state.Scores, refs, c.policy)
	if !gate.Passed {
		c.state.Counters.GateOverrideCount++
		c.logger.Warn(logModule, "Critic approval overridden by quality gate", map[string]interface{}{
			"reason":    gate.Reason,
			"approved":  len(refs),
			"qualified": len(gate.Qualified),
		})
		return c.refine("gate not met: " + gate.Reason)
	}

	c.state.Counters.ProceedToSynthesisCount++
	c.state.Phase = PhaseSynthesis
	c.state.ApprovedReferences = gate.Qualified
	c.logger.Info(logModule, "Entering synthesis phase", map[string]interface{}{
		"approved_references": len(gate.Qualified),
		"refine_cycles":       c.state.Counters.RefineSearchCount,
	})
	return route(ActorSynthesis, "gate passed")
}

func (c *Controller) refine(reason string) Decision {
	c.state.Counters.RefineSearchCount++
	return route(ActorQueryPlanner, reason)
}

func (c *Controller) decideSynthesis(last Turn, history []Turn) Decision {
	switch last.ActorID {
	case ActorSynthesis:
		if MatchSynthesisComplete(last.Content) {
			return route(ActorReferenceChecker, "synthesis complete")
		}
		return route(ActorSynthesis, "synthesis pending")
	case ActorReferenceChecker:
		switch MatchReferenceSignal(last.Content) {
		case ReferenceRevise:
			c.state.Counters.ReferenceValidationCount++
			return route(ActorSynthesis, "reference check requested revision")
		case ReferenceProceed:
			if draft, ok := LastFrom(history, ActorSynthesis); ok {
				if bad := UnapprovedCitations(draft.Content, c.state.ApprovedReferences); len(bad) > 0 {
					c.state.Counters.ReferenceValidationCount++
					c.logger.Warn(logModule, "Synthesis cites unapproved references", map[string]interface{}{
						"keys": bad,
					})
					return route(ActorSynthesis, "unapproved citations: "+strings.Join(bad, ", "))
				}
			}
			return route(ActorFormatter, "references verified")
		default:
			return terminate("reference check gave no verdict")
		}
	case ActorFormatter:
		if MatchTermination(last.Content) {
			return terminate("formatting complete")
		}
		return terminate("formatter output missing termination marker")
	default:
		return terminate(fmt.Sprintf("unexpected %s turn during %s", last.ActorID, PhaseSynthesis))
	}
}

func (c *Controller) protocolViolation(err error) {
	c.state.Counters.ProtocolViolationCount++
	c.logger.Warn(logModule, "Protocol violation", map[string]interface{}{"error": err})
}
