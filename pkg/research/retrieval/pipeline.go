package retrieval

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sourcegraph/conc/stream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"literas-be/internal/pkg/logger"
)

const (
	pipelineModule = "RetrievalPipeline"

	DefaultBatchSize  = 50
	DefaultCooldown   = 2 * time.Second
	DefaultMaxResults = 35
)

// QueryReport summarizes what one query contributed.
type QueryReport struct {
	Query     string `json:"query"`
	Found     int    `json:"found"`
	Fetched   int    `json:"fetched"`
	Throttled bool   `json:"throttled,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
}

// Result is the deduplicated outcome of a query set.
type Result struct {
	Papers  []Paper       `json:"papers"`
	Queries []QueryReport `json:"queries"`
}

type PipelineOption func(*Pipeline)

// WithBatchSize sets how many ids go into one fetch call.
func WithBatchSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithCooldown sets the pause after a throttling answer.
func WithCooldown(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d >= 0 {
			p.cooldown = d
		}
	}
}

// WithFetchConcurrency allows several batch fetches in flight. Results are
// still merged in batch order and every fetch still waits for the limiter.
func WithFetchConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// Pipeline fans queries out through a Client, one query at a time, and
// merges the fetched records.
type Pipeline struct {
	client      Client
	limiter     *RateLimiter
	batchSize   int
	cooldown    time.Duration
	concurrency int
	logger      logger.ILogger
	tracer      trace.Tracer
}

func NewPipeline(client Client, limiter *RateLimiter, log logger.ILogger, opts ...PipelineOption) *Pipeline {
	if log == nil {
		log = logger.NewNopLogger()
	}
	p := &Pipeline{
		client:      client,
		limiter:     limiter,
		batchSize:   DefaultBatchSize,
		cooldown:    DefaultCooldown,
		concurrency: 1,
		logger:      log,
		tracer:      otel.Tracer("literas-be/retrieval"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Search returns the deduplicated papers for the queries. Provider failures
// only shrink the result; the error is non-nil only when ctx ends.
func (p *Pipeline) Search(ctx context.Context, queries []string, maxPerQuery int) ([]Paper, error) {
	res, err := p.Run(ctx, queries, maxPerQuery)
	return res.Papers, err
}

// Run is Search plus a per-query report.
func (p *Pipeline) Run(ctx context.Context, queries []string, maxPerQuery int) (Result, error) {
	if maxPerQuery <= 0 {
		maxPerQuery = DefaultMaxResults
	}
	ctx, span := p.tracer.Start(ctx, "retrieval.Run", trace.WithAttributes(
		attribute.Int("retrieval.queries", len(queries)),
		attribute.Int("retrieval.max_per_query", maxPerQuery),
	))
	defer span.End()

	res := Result{Papers: []Paper{}, Queries: []QueryReport{}}
	var all []Paper
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		papers, report, err := p.runQuery(ctx, q, maxPerQuery)
		res.Queries = append(res.Queries, report)
		all = append(all, papers...)
		if err != nil {
			res.Papers = Dedupe(all)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return res, err
		}
	}

	res.Papers = Dedupe(all)
	span.SetAttributes(attribute.Int("retrieval.unique_papers", len(res.Papers)))
	p.logger.Info(pipelineModule, "Retrieval finished", map[string]interface{}{
		"queries": len(res.Queries),
		"fetched": len(all),
		"unique":  len(res.Papers),
		"dropped": len(all) - len(res.Papers),
	})
	return res, nil
}

// runQuery only returns an error for cancellation.
func (p *Pipeline) runQuery(ctx context.Context, query string, maxResults int) ([]Paper, QueryReport, error) {
	report := QueryReport{Query: query}
	ctx, span := p.tracer.Start(ctx, "retrieval.Query", trace.WithAttributes(attribute.String("retrieval.query", query)))
	defer span.End()

	if err := p.limiter.Acquire(ctx); err != nil {
		return nil, report, err
	}
	ids, err := p.client.Search(ctx, query, maxResults)
	if err != nil {
		if ctx.Err() != nil {
			return nil, report, ctx.Err()
		}
		report.Throttled, report.Failed = p.absorb(ctx, "search", query, err)
		if ctx.Err() != nil {
			return nil, report, ctx.Err()
		}
		return nil, report, nil
	}
	report.Found = len(ids)
	if len(ids) == 0 {
		p.logger.Info(pipelineModule, "No articles found", map[string]interface{}{"query": query})
		return nil, report, nil
	}

	papers, err := p.fetchBatches(ctx, query, ids, &report)
	report.Fetched = len(papers)
	span.SetAttributes(attribute.Int("retrieval.found", report.Found), attribute.Int("retrieval.fetched", report.Fetched))
	return papers, report, err
}

func (p *Pipeline) fetchBatches(ctx context.Context, query string, ids []string, report *QueryReport) ([]Paper, error) {
	var (
		papers   []Paper
		throttle bool
		failed   bool
	)

	s := stream.New().WithMaxGoroutines(p.concurrency)
	for start := 0; start < len(ids); start += p.batchSize {
		end := start + p.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		index := start / p.batchSize

		s.Go(func() stream.Callback {
			batchCtx, span := p.tracer.Start(ctx, "retrieval.FetchBatch", trace.WithAttributes(
				attribute.Int("retrieval.batch", index),
				attribute.Int("retrieval.batch_size", len(batch)),
			))
			defer span.End()

			if err := p.limiter.Acquire(batchCtx); err != nil {
				return func() {}
			}
			got, err := p.client.Fetch(batchCtx, batch)
			if err != nil {
				if ctx.Err() != nil {
					return func() {}
				}
				t, f := p.absorb(batchCtx, "fetch", query, err)
				span.RecordError(err)
				return func() {
					throttle = throttle || t
					failed = failed || f
				}
			}
			return func() {
				papers = append(papers, got...)
			}
		})
	}
	s.Wait()

	report.Throttled = report.Throttled || throttle
	report.Failed = report.Failed || failed
	return papers, ctx.Err()
}

// absorb logs a provider failure and applies the throttling cooldown. It
// reports whether the failure was a throttle and whether it was anything else.
func (p *Pipeline) absorb(ctx context.Context, op, query string, err error) (throttled, failed bool) {
	details := map[string]interface{}{"op": op, "query": query, "error": err}

	if errors.Is(err, ErrThrottled) {
		details["cooldown"] = p.cooldown.String()
		p.logger.Warn(pipelineModule, "Rate limit exceeded, cooling down", details)
		_ = p.limiter.Cooldown(ctx, p.cooldown)
		return true, false
	}

	var se *StatusError
	if errors.As(err, &se) {
		details["status"] = se.Code
		p.logger.Warn(pipelineModule, "Provider returned an error status", details)
	} else {
		p.logger.Error(pipelineModule, "Provider request failed", details)
	}
	return false, true
}
