package workflow

import "strings"

// Markers the actors embed in their free text output. Matching is
// case-insensitive substring search.
const (
	MarkerRefineSearch        = "REFINE_SEARCH"
	MarkerProceedToSynthesis  = "PROCEED_TO_SYNTHESIS"
	MarkerSynthesisComplete   = "SYNTHESIS_COMPLETE"
	MarkerReviseNeeded        = "REVISE_NEEDED"
	MarkerProceedToFormatting = "PROCEED_TO_FORMATTING"
	MarkerTerminate           = "TERMINATE"
)

// CriticSignal is what the critic asked for at the end of a SEARCH cycle.
type CriticSignal int

const (
	CriticNone CriticSignal = iota
	CriticRefine
	CriticProceed
	CriticConflict
)

func (s CriticSignal) String() string {
	switch s {
	case CriticRefine:
		return "refine"
	case CriticProceed:
		return "proceed"
	case CriticConflict:
		return "conflict"
	default:
		return "none"
	}
}

// ReferenceSignal is the reference checker's verdict on a synthesis.
type ReferenceSignal int

const (
	ReferenceNone ReferenceSignal = iota
	ReferenceRevise
	ReferenceProceed
)

func (s ReferenceSignal) String() string {
	switch s {
	case ReferenceRevise:
		return "revise"
	case ReferenceProceed:
		return "proceed"
	default:
		return "none"
	}
}

func contains(content, marker string) bool {
	return strings.Contains(strings.ToUpper(content), marker)
}

// MatchCriticSignal classifies critic output. Both or neither marker is
// reported separately so the controller can apply its fail-safe policy.
func MatchCriticSignal(content string) CriticSignal {
	refine := contains(content, MarkerRefineSearch)
	proceed := contains(content, MarkerProceedToSynthesis)
	switch {
	case refine && proceed:
		return CriticConflict
	case refine:
		return CriticRefine
	case proceed:
		return CriticProceed
	default:
		return CriticNone
	}
}

// MatchSynthesisComplete reports whether the synthesis actor declared its draft done.
func MatchSynthesisComplete(content string) bool {
	return contains(content, MarkerSynthesisComplete)
}

// MatchReferenceSignal classifies reference checker output. A revise request
// wins over a proceed marker in the same turn.
func MatchReferenceSignal(content string) ReferenceSignal {
	if contains(content, MarkerReviseNeeded) {
		return ReferenceRevise
	}
	if contains(content, MarkerProceedToFormatting) {
		return ReferenceProceed
	}
	return ReferenceNone
}

// MatchTermination reports whether the formatter finished the session.
func MatchTermination(content string) bool {
	return contains(content, MarkerTerminate)
}
