package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"literas-be/internal/pkg/logger"
	"literas-be/pkg/research/retrieval"
	"literas-be/pkg/research/workflow"
)

const searchModule = "SearchAgent"

// Searcher is the part of the retrieval pipeline the search actor needs.
type Searcher interface {
	Run(ctx context.Context, queries []string, maxPerQuery int) (retrieval.Result, error)
}

// SearchActor executes the planner's latest queries. It never calls a model.
type SearchActor struct {
	searcher    Searcher
	maxPerQuery int
	logger      logger.ILogger
}

func NewSearchActor(searcher Searcher, maxPerQuery int, log logger.ILogger) *SearchActor {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &SearchActor{searcher: searcher, maxPerQuery: maxPerQuery, logger: log}
}

func (a *SearchActor) ID() workflow.ActorID { return workflow.ActorSearch }

type searchQuery struct {
	Query   string `json:"query"`
	Results int    `json:"results"`
}

type searchOutput struct {
	Queries     []searchQuery     `json:"queries"`
	TotalUnique int               `json:"total_unique"`
	Papers      []retrieval.Paper `json:"papers"`
}

func (a *SearchActor) Respond(ctx context.Context, history []workflow.Turn) (string, error) {
	queries := a.queries(history)
	if len(queries) == 0 {
		return "", fmt.Errorf("%s: no queries and no research topic", workflow.ActorSearch)
	}

	res, err := a.searcher.Run(ctx, queries, a.maxPerQuery)
	if err != nil {
		return "", fmt.Errorf("%s: %w", workflow.ActorSearch, err)
	}

	out := searchOutput{TotalUnique: len(res.Papers), Papers: res.Papers}
	var lines []string
	for _, q := range res.Queries {
		out.Queries = append(out.Queries, searchQuery{Query: q.Query, Results: q.Fetched})
		line := fmt.Sprintf("- %q: %d found, %d retrieved", q.Query, q.Found, q.Fetched)
		if q.Throttled {
			line += " (rate limited)"
		} else if q.Failed {
			line += " (provider error)"
		}
		lines = append(lines, line)
	}

	payload, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%s: encode results: %w", workflow.ActorSearch, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Searched PubMed with %d queries and found %d unique papers.\n", len(res.Queries), len(res.Papers))
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\n```json\n")
	b.Write(payload)
	b.WriteString("\n```")
	return b.String(), nil
}

// queries takes the planner's latest payload, falling back to the topic.
func (a *SearchActor) queries(history []workflow.Turn) []string {
	if plan, ok := workflow.LastFrom(history, workflow.ActorQueryPlanner); ok {
		p, err := workflow.DecodePlannerPayload(plan.Content)
		if err == nil && len(p.MainQueries) > 0 {
			return p.MainQueries
		}
		a.logger.Warn(searchModule, "Planner payload unusable, searching the topic", map[string]interface{}{"error": err})
	}
	if topic := TopicOf(history); topic != "" {
		return []string{topic}
	}
	return nil
}
