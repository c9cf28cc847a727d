package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchCriticSignal(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    CriticSignal
	}{
		{name: "refine", content: "Coverage is thin. REFINE_SEARCH", want: CriticRefine},
		{name: "proceed", content: "PROCEED_TO_SYNTHESIS", want: CriticProceed},
		{name: "lowercase", content: "please proceed_to_synthesis", want: CriticProceed},
		{name: "both", content: "REFINE_SEARCH ... actually PROCEED_TO_SYNTHESIS", want: CriticConflict},
		{name: "neither", content: "Looks reasonable.", want: CriticNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchCriticSignal(tt.content))
		})
	}
}

func TestMatchReferenceSignal(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    ReferenceSignal
	}{
		{name: "revise", content: "REVISE_NEEDED: [Ghost2020] missing", want: ReferenceRevise},
		{name: "proceed", content: "All good. PROCEED_TO_FORMATTING", want: ReferenceProceed},
		{name: "revise wins", content: "PROCEED_TO_FORMATTING? No: REVISE_NEEDED", want: ReferenceRevise},
		{name: "none", content: "Checked.", want: ReferenceNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchReferenceSignal(tt.content))
		})
	}
}

func TestMatchSynthesisAndTermination(t *testing.T) {
	assert.True(t, MatchSynthesisComplete("...\nSynthesis_Complete"))
	assert.False(t, MatchSynthesisComplete("synthesis in progress"))
	assert.True(t, MatchTermination("Report follows.\nTERMINATE"))
	assert.False(t, MatchTermination("Report follows."))
}

func TestSignalStrings(t *testing.T) {
	assert.Equal(t, "conflict", CriticConflict.String())
	assert.Equal(t, "none", CriticNone.String())
	assert.Equal(t, "revise", ReferenceRevise.String())
}
