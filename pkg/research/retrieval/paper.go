package retrieval

import (
	"strings"

	"literas-be/pkg/research/workflow"
)

// Placeholders used instead of empty fields so scoring never sees a blank.
const (
	NoTitle    = "No title available"
	NoAbstract = "No abstract available"
	NoJournal  = "No journal available"
	NoDate     = "Unknown"
	NoDOI      = "No DOI available"
	NoAuthor   = "No author name available"
)

// Paper is one normalized bibliographic record.
type Paper struct {
	Title           string `json:"title"`
	Abstract        string `json:"abstract"`
	Journal         string `json:"journal"`
	PublicationDate string `json:"publication_date"`
	DOI             string `json:"doi"`
	FirstAuthor     string `json:"first_author"`
	ExternalID      string `json:"external_id"`
}

// Key is the identity used for deduplication: the PubMed id, else the
// normalized DOI, else title plus first author. A record with none of these
// has no identity and returns "".
func (p Paper) Key() string {
	if id := strings.TrimSpace(p.ExternalID); id != "" {
		return "id:" + id
	}
	if doi := workflow.NormalizeDOI(p.DOI); doi != "" {
		return "doi:" + doi
	}
	title := workflow.NormalizeTitle(p.Title)
	if title == workflow.NormalizeTitle(NoTitle) {
		title = ""
	}
	author := strings.ToLower(strings.TrimSpace(p.FirstAuthor))
	if author == strings.ToLower(NoAuthor) {
		author = ""
	}
	if title == "" && author == "" {
		return ""
	}
	return "title:" + title + "|" + author
}

// Dedupe keeps the first paper for every identity key and preserves order.
// Papers without an identity are always kept.
func Dedupe(papers []Paper) []Paper {
	seen := make(map[string]struct{}, len(papers))
	out := make([]Paper, 0, len(papers))
	for _, p := range papers {
		k := p.Key()
		if k == "" {
			out = append(out, p)
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}
