package actor

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"literas-be/pkg/research/workflow"
)

//go:embed instructions.yaml
var defaultInstructions []byte

// Instruction is the system prompt and sampling setting of one actor.
type Instruction struct {
	Temperature *float64 `yaml:"temperature"`
	Text        string   `yaml:"instruction"`
}

// Catalog holds the task brief and the instruction of every generation-backed actor.
type Catalog struct {
	TaskBrief string                 `yaml:"task_brief"`
	Actors    map[string]Instruction `yaml:"actors"`
}

// generated lists the actors that need an instruction. SearchAgent is
// deterministic and has none.
var generated = []workflow.ActorID{
	workflow.ActorQueryPlanner,
	workflow.ActorValidator,
	workflow.ActorCritic,
	workflow.ActorSynthesis,
	workflow.ActorReferenceChecker,
	workflow.ActorFormatter,
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Catalog{}, fmt.Errorf("actor: instruction catalog is empty")
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("actor: decode instruction catalog: %w", err)
	}
	var missing []string
	for _, id := range generated {
		if strings.TrimSpace(c.Actors[string(id)].Text) == "" {
			missing = append(missing, string(id))
		}
	}
	if len(missing) > 0 {
		return Catalog{}, fmt.Errorf("actor: instruction catalog lacks %s", strings.Join(missing, ", "))
	}
	return c, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() Catalog {
	c, err := ParseCatalog(defaultInstructions)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Catalog) For(id workflow.ActorID) (Instruction, bool) {
	in, ok := c.Actors[string(id)]
	return in, ok
}
