package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"literas-be/internal/bootstrap"
	"literas-be/internal/config"
	"literas-be/internal/pkg/logger"
	"literas-be/internal/tracer"
	"literas-be/pkg/research/session"

	"github.com/fatih/color"
)

// Runs one research session in the terminal, or a bare PubMed search with -search.
func main() {
	verbose := flag.Bool("v", false, "write structured logs to stdout")
	chat := flag.Bool("chat", false, "hide internal agents like the websocket client does")
	search := flag.String("search", "", "semicolon separated queries; skips the agents and prints papers")
	flag.Parse()
	topic := strings.TrimSpace(strings.Join(flag.Args(), " "))

	shutdownTracer := tracer.InitTracer("research-cli")
	defer shutdownTracer(context.Background())

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		color.Red("Invalid configuration: %v", err)
		os.Exit(2)
	}

	var log logger.ILogger = logger.NewNopLogger()
	if *verbose {
		log = logger.NewZapLogger(cfg.App.LogFilePath, false)
	}
	defer log.Sync()

	core, err := bootstrap.NewResearchCore(cfg, log)
	if err != nil {
		color.Red("Failed to initialize: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *search != "" {
		os.Exit(runSearch(ctx, core, *search, cfg.Retrieval.MaxResults))
	}
	if topic == "" {
		fmt.Fprintln(os.Stderr, "usage: research [-v] [-chat] <topic>\n       research -search \"query one; query two\"")
		os.Exit(2)
	}

	hidden := map[string]bool{}
	if *chat {
		for _, a := range cfg.App.HiddenAgents {
			hidden[a] = true
		}
	}

	sess := session.New(topic, core.Actors, core.Session, session.WithLogger(log))
	color.Cyan("🔬 Researching: %s (session %s)\n", topic, sess.ID())

	failed := false
	for ev := range sess.Events(ctx) {
		if ev.Type == session.EventError {
			failed = true
			color.Red("\n[error] %s", ev.Message)
			continue
		}
		if hidden[ev.Agent] {
			continue
		}
		color.Yellow("\n[%s]", ev.Agent)
		fmt.Println(ev.Content)
	}

	info := sess.Info()
	c := info.State.Counters
	color.Cyan("\nStatus: %s | turns: %d | duration: %s", info.Status, info.TurnCount, info.Duration)
	fmt.Printf("refine=%d proceed=%d revise=%d gate_overrides=%d violations=%d approved=%d\n",
		c.RefineSearchCount, c.ProceedToSynthesisCount, c.ReferenceValidationCount,
		c.GateOverrideCount, c.ProtocolViolationCount, len(info.State.ApprovedReferences))
	if failed {
		os.Exit(1)
	}
}

func runSearch(ctx context.Context, core *bootstrap.ResearchCore, raw string, maxResults int) int {
	var queries []string
	for _, q := range strings.Split(raw, ";") {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}

	res, err := core.Pipeline.Run(ctx, queries, maxResults)
	if err != nil {
		color.Red("Search failed: %v", err)
		return 1
	}
	for _, q := range res.Queries {
		color.Green("%q: %d found, %d fetched", q.Query, q.Found, q.Fetched)
	}
	b, _ := json.MarshalIndent(res.Papers, "", "  ")
	fmt.Println(string(b))
	color.Cyan("%d unique papers", len(res.Papers))
	return 0
}
