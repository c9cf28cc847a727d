package workflow

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// GatePolicy is the aggregate quality bar for leaving the SEARCH phase.
type GatePolicy struct {
	MinPapers int
	MinScore  float64
}

// DefaultGatePolicy requires three papers scoring at least 20 of 25.
func DefaultGatePolicy() GatePolicy {
	return GatePolicy{MinPapers: 3, MinScore: 20}
}

// GateResult reports whether the critic's approval stands.
type GateResult struct {
	Passed    bool
	Qualified []ApprovedReference
	Reason    string
}

// EvaluateGate keeps only approved references that match a scored paper at
// or above the per-paper threshold and passes when enough distinct papers
// remain. A second approval of an already matched paper is dropped.
func EvaluateGate(scores []Score, approved []ApprovedReference, policy GatePolicy) GateResult {
	if len(approved) == 0 {
		return GateResult{Reason: "critic approved no references"}
	}

	byDOI := make(map[string]Score)
	byTitle := make(map[string]Score)
	for _, s := range scores {
		if doi := NormalizeDOI(s.DOI); doi != "" {
			byDOI[doi] = s
		}
		if t := NormalizeTitle(s.Title); t != "" {
			byTitle[t] = s
		}
	}

	var qualified []ApprovedReference
	matched := make(map[string]bool)
	for _, ref := range approved {
		sc, ok := byDOI[NormalizeDOI(ref.DOI)]
		if !ok {
			sc, ok = byTitle[NormalizeTitle(ref.Title)]
		}
		if !ok || sc.Total < policy.MinScore {
			continue
		}
		key := scoreKey(sc.PaperRef)
		if matched[key] {
			continue
		}
		matched[key] = true
		qualified = append(qualified, ref)
	}

	if len(qualified) < policy.MinPapers || len(qualified) == 0 {
		return GateResult{
			Qualified: qualified,
			Reason: fmt.Sprintf("%d distinct papers among %d approved references scored >= %.0f, need %d",
				len(qualified), len(approved), policy.MinScore, policy.MinPapers),
		}
	}
	return GateResult{Passed: true, Qualified: qualified}
}

var (
	bracketGroup   = regexp.MustCompile(`\[([^\[\]]{1,200})\]`)
	citationKeyPat = regexp.MustCompile(`^\p{L}[\p{L}'\-]*\d{4}[a-z]?$`)
)

// CitedKeys returns the distinct FirstAuthorYear style keys cited in
// brackets, e.g. "[Smith2024]", "[vanDijk2021]" or "[Smith2024; Lee2023a]",
// in order of first use.
func CitedKeys(text string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, m := range bracketGroup.FindAllStringSubmatch(text, -1) {
		for _, part := range strings.FieldsFunc(m[1], func(r rune) bool { return r == ';' || r == ',' }) {
			key := strings.TrimSpace(part)
			if !citationKeyPat.MatchString(key) || seen[key] {
				continue
			}
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}

// UnapprovedCitations lists cited keys that are not in the approved set.
func UnapprovedCitations(text string, approved []ApprovedReference) []string {
	allowed := make(map[string]bool, len(approved))
	for _, r := range approved {
		allowed[strings.ToLower(strings.TrimSpace(r.CitationKey))] = true
	}
	var out []string
	for _, key := range CitedKeys(text) {
		if !allowed[strings.ToLower(key)] {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
