package actor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"literas-be/pkg/research/workflow"
)

// ErrUnknownActor is returned when the controller routes to an id nobody registered.
var ErrUnknownActor = errors.New("actor: unknown actor")

// Actor is one participant of the session. It reads the history and
// returns the content of its next turn.
type Actor interface {
	ID() workflow.ActorID
	Respond(ctx context.Context, history []workflow.Turn) (string, error)
}

// Registry maps actor ids to implementations.
type Registry struct {
	actors map[workflow.ActorID]Actor
}

func NewRegistry(actors ...Actor) *Registry {
	r := &Registry{actors: make(map[workflow.ActorID]Actor, len(actors))}
	for _, a := range actors {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an actor.
func (r *Registry) Register(a Actor) {
	r.actors[a.ID()] = a
}

func (r *Registry) Get(id workflow.ActorID) (Actor, error) {
	a, ok := r.actors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActor, id)
	}
	return a, nil
}

func (r *Registry) IDs() []workflow.ActorID {
	ids := make([]workflow.ActorID, 0, len(r.actors))
	for id := range r.actors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Missing lists the routable actors that have no implementation.
func (r *Registry) Missing() []workflow.ActorID {
	var out []workflow.ActorID
	for _, id := range workflow.AllActors {
		if _, ok := r.actors[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

const topicPrefix = "Research topic: "

// BootstrapContent is the content of the opening user turn.
func BootstrapContent(topic, brief string) string {
	content := topicPrefix + strings.TrimSpace(topic)
	if brief = strings.TrimSpace(brief); brief != "" {
		content += "\n\n" + brief
	}
	return content
}

// TopicOf recovers the research topic from the opening user turn.
func TopicOf(history []workflow.Turn) string {
	for _, t := range history {
		if t.ActorID != workflow.ActorUser {
			continue
		}
		line, _, _ := strings.Cut(t.Content, "\n")
		return strings.TrimSpace(strings.TrimPrefix(line, topicPrefix))
	}
	return ""
}
