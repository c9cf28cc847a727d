package workflow

import (
	"strings"
	"unicode"
)

// Counters are guard and diagnostic values for one session.
type Counters struct {
	RefineSearchCount        int `json:"refine_search_count"`
	ProceedToSynthesisCount  int `json:"proceed_to_synthesis_count"`
	ReferenceValidationCount int `json:"reference_validation_count"`
	TotalStudiesSeen         int `json:"total_studies_seen"`
	GateOverrideCount        int `json:"gate_override_count"`
	ProtocolViolationCount   int `json:"protocol_violation_count"`
}

// SessionState is everything the controller tracks besides the history.
// Only the controller mutates it; everyone else gets a Snapshot copy.
type SessionState struct {
	Phase              Phase               `json:"phase"`
	Counters           Counters            `json:"counters"`
	Scores             []Score             `json:"scores"`
	ApprovedReferences []ApprovedReference `json:"approved_references"`
	LastDecision       Decision            `json:"last_decision"`
}

// NewSessionState returns the state every session starts from.
func NewSessionState() SessionState {
	return SessionState{Phase: PhaseSearch}
}

func (s SessionState) clone() SessionState {
	out := s
	out.Scores = append([]Score(nil), s.Scores...)
	out.ApprovedReferences = make([]ApprovedReference, len(s.ApprovedReferences))
	for i, r := range s.ApprovedReferences {
		r.Authors = append([]string(nil), r.Authors...)
		out.ApprovedReferences[i] = r
	}
	return out
}

// mergeScores folds a validator batch into the state. A paper scored again
// replaces its previous score; the studies-seen counter reflects only the
// latest batch.
func (s *SessionState) mergeScores(batch []Score) {
	index := make(map[string]int, len(s.Scores))
	for i, sc := range s.Scores {
		index[scoreKey(sc.PaperRef)] = i
	}
	for _, sc := range batch {
		key := scoreKey(sc.PaperRef)
		if i, ok := index[key]; ok {
			s.Scores[i] = sc
			continue
		}
		index[key] = len(s.Scores)
		s.Scores = append(s.Scores, sc)
	}
	s.Counters.TotalStudiesSeen = len(batch)
}

func scoreKey(ref PaperRef) string {
	if doi := NormalizeDOI(ref.DOI); doi != "" {
		return "doi:" + doi
	}
	return "title:" + NormalizeTitle(ref.Title)
}

// NormalizeDOI lowercases a DOI and strips resolver prefixes. Placeholder
// values such as "No DOI available" normalize to "".
func NormalizeDOI(doi string) string {
	d := strings.ToLower(strings.TrimSpace(doi))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		d = strings.TrimPrefix(d, prefix)
	}
	d = strings.TrimSpace(d)
	if !strings.HasPrefix(d, "10.") {
		return ""
	}
	return d
}

// NormalizeTitle folds case and drops punctuation so the same title written
// by two actors compares equal.
func NormalizeTitle(title string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
		default:
			space = true
		}
	}
	return b.String()
}
