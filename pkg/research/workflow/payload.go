package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrProtocolViolation marks actor output that breaks the payload contract.
var ErrProtocolViolation = errors.New("protocol violation")

// ProtocolError describes which actor broke the contract and how.
type ProtocolError struct {
	Actor  ActorID
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrProtocolViolation, e.Actor, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocolViolation
}

func violation(actor ActorID, format string, args ...interface{}) error {
	return &ProtocolError{Actor: actor, Reason: fmt.Sprintf(format, args...)}
}

const scoreProperty = `{"type": "number", "minimum": 0, "maximum": 5}`

var validatorSchemaJSON = `{
  "type": "object",
  "required": ["scored_papers"],
  "properties": {
    "scored_papers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title", "relevance_score", "recency_score", "methodology_score", "applicability_score", "innovation_score"],
        "properties": {
          "title": {"type": "string", "minLength": 1},
          "doi": {"type": "string"},
          "relevance_score": ` + scoreProperty + `,
          "recency_score": ` + scoreProperty + `,
          "methodology_score": ` + scoreProperty + `,
          "applicability_score": ` + scoreProperty + `,
          "innovation_score": ` + scoreProperty + `,
          "total_score": {"type": "number", "minimum": 0, "maximum": 25},
          "reason": {"type": "string"}
        }
      }
    },
    "summary": {"type": "object"}
  }
}`

const referenceListSchemaJSON = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["title", "citation_key"],
    "properties": {
      "title": {"type": "string", "minLength": 1},
      "authors": {"type": "array", "items": {"type": "string"}},
      "year": {"type": ["string", "integer"]},
      "journal": {"type": "string"},
      "doi": {"type": "string"},
      "citation_key": {"type": "string", "minLength": 1}
    }
  }
}`

var criticObjectSchemaJSON = `{
  "type": "object",
  "required": ["approved_references"],
  "properties": {"approved_references": ` + referenceListSchemaJSON + `}
}`

const plannerSchemaJSON = `{
  "type": "object",
  "required": ["main_queries"],
  "properties": {
    "main_queries": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    }
  }
}`

var (
	validatorSchema    = mustSchema(validatorSchemaJSON)
	criticObjectSchema = mustSchema(criticObjectSchemaJSON)
	criticListSchema   = mustSchema(referenceListSchemaJSON)
	plannerSchema      = mustSchema(plannerSchemaJSON)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("workflow: invalid payload schema: %v", err))
	}
	return s
}

// PaperRef identifies the paper a score refers to.
type PaperRef struct {
	Title string `json:"title"`
	DOI   string `json:"doi"`
}

// Score is the validator's rating of one paper. Total is always the sum of
// the five sub-scores regardless of what the actor reported.
type Score struct {
	PaperRef
	Relevance     float64 `json:"relevance_score"`
	Recency       float64 `json:"recency_score"`
	Methodology   float64 `json:"methodology_score"`
	Applicability float64 `json:"applicability_score"`
	Innovation    float64 `json:"innovation_score"`
	Total         float64 `json:"total_score"`
	Rationale     string  `json:"reason"`
}

func (s *Score) recomputeTotal() {
	s.Total = s.Relevance + s.Recency + s.Methodology + s.Applicability + s.Innovation
}

// ValidatorPayload is the structured part of a Validator turn.
type ValidatorPayload struct {
	ScoredPapers []Score               `json:"scored_papers"`
	Summary      map[string]interface{} `json:"summary,omitempty"`
}

// ApprovedReference is a paper promoted by the critic for synthesis.
type ApprovedReference struct {
	Title       string     `json:"title"`
	Authors     []string   `json:"authors,omitempty"`
	Year        FlexString `json:"year,omitempty"`
	Journal     string     `json:"journal,omitempty"`
	DOI         string     `json:"doi,omitempty"`
	CitationKey string     `json:"citation_key"`
}

// FlexString is a string that also accepts a JSON number.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// PlannerPayload is the structured part of a QueryPlanner turn.
type PlannerPayload struct {
	MainQueries []string `json:"main_queries"`
}

// DecodeValidatorPayload extracts and validates the scored paper list.
func DecodeValidatorPayload(content string) (ValidatorPayload, error) {
	raw, _, err := decodeCandidate(ActorValidator, content, validatorSchema)
	if err != nil {
		return ValidatorPayload{}, err
	}
	var p ValidatorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ValidatorPayload{}, violation(ActorValidator, "decode scored papers: %v", err)
	}
	for i := range p.ScoredPapers {
		p.ScoredPapers[i].recomputeTotal()
	}
	return p, nil
}

// DecodeCriticPayload extracts the approved reference list. Both the
// {"approved_references": [...]} object and a bare array are accepted.
// Citation keys must be unique.
func DecodeCriticPayload(content string) ([]ApprovedReference, error) {
	raw, idx, err := decodeCandidate(ActorCritic, content, criticObjectSchema, criticListSchema)
	if err != nil {
		return nil, err
	}

	var refs []ApprovedReference
	if idx == 0 {
		var wrapped struct {
			ApprovedReferences []ApprovedReference `json:"approved_references"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, violation(ActorCritic, "decode approved references: %v", err)
		}
		refs = wrapped.ApprovedReferences
	} else if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, violation(ActorCritic, "decode approved references: %v", err)
	}

	seen := make(map[string]bool, len(refs))
	for _, r := range refs {
		key := strings.TrimSpace(r.CitationKey)
		if seen[key] {
			return nil, violation(ActorCritic, "duplicate citation key %q", key)
		}
		seen[key] = true
	}
	return refs, nil
}

// DecodePlannerPayload extracts the planner's query list.
func DecodePlannerPayload(content string) (PlannerPayload, error) {
	raw, _, err := decodeCandidate(ActorQueryPlanner, content, plannerSchema)
	if err != nil {
		return PlannerPayload{}, err
	}
	var p PlannerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return PlannerPayload{}, violation(ActorQueryPlanner, "decode queries: %v", err)
	}
	queries := p.MainQueries[:0]
	for _, q := range p.MainQueries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	p.MainQueries = queries
	return p, nil
}

// decodeCandidate returns the first JSON fragment of content that satisfies
// one of the schemas, along with the index of the schema it matched.
func decodeCandidate(actor ActorID, content string, schemas ...*gojsonschema.Schema) ([]byte, int, error) {
	candidates := jsonCandidates(content)
	if len(candidates) == 0 {
		return nil, -1, violation(actor, "no JSON payload found")
	}

	var problems []string
	for _, c := range candidates {
		loader := gojsonschema.NewStringLoader(c)
		for idx, schema := range schemas {
			result, err := schema.Validate(loader)
			if err != nil {
				problems = append(problems, err.Error())
				continue
			}
			if result.Valid() {
				return []byte(c), idx, nil
			}
			for _, re := range result.Errors() {
				problems = append(problems, re.String())
			}
		}
	}
	if len(problems) > 3 {
		problems = append(problems[:3], "... "+strconv.Itoa(len(problems)-3)+" more")
	}
	return nil, -1, violation(actor, "payload failed schema: %s", strings.Join(problems, "; "))
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// jsonCandidates lists JSON-looking fragments embedded in free text: fenced
// code blocks first, then every balanced object or array that parses.
func jsonCandidates(text string) []string {
	var out []string
	for _, m := range fencedJSON.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		if json.Valid([]byte(body)) {
			out = append(out, body)
		}
	}
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		end := matchBracket(text, i)
		if end < 0 {
			continue
		}
		if frag := text[i : end+1]; json.Valid([]byte(frag)) {
			out = append(out, frag)
			i = end
		}
	}
	return out
}

func matchBracket(s string, start int) int {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				return -1
			}
			open := stack[len(stack)-1]
			if (c == '}' && open != '{') || (c == ']' && open != '[') {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}
