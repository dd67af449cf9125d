// Package questionnaire holds the fixed twelve-phase question catalog every
// planning session walks through.
package questionnaire

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// PhaseCount is the number of phases a session must answer before a plan can
// be generated.
const PhaseCount = 12

//go:embed phases.yaml
var phasesYAML []byte

type Question struct {
	ID      string   `yaml:"id" json:"id"`
	Text    string   `yaml:"text" json:"text"`
	Kind    string   `yaml:"kind" json:"kind"`
	Options []string `yaml:"options,omitempty" json:"options,omitempty"`
}

type Phase struct {
	Number    int        `yaml:"number" json:"number"`
	Title     string     `yaml:"title" json:"title"`
	Questions []Question `yaml:"questions" json:"questions"`
}

// Question looks up a question by id.
func (p Phase) Question(id string) (Question, bool) {
	for _, q := range p.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Catalog is immutable after Parse.
type Catalog struct {
	phases []Phase
	byNum  map[int]int
}

var validKinds = map[string]bool{
	"short_text":   true,
	"long_text":    true,
	"choice":       true,
	"multi_choice": true,
	"boolean":      true,
}

// Parse decodes and validates a catalog document.
func Parse(raw []byte) (*Catalog, error) {
	var doc struct {
		Phases []Phase `yaml:"phases"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("questionnaire: decode: %w", err)
	}
	c := &Catalog{phases: doc.Phases, byNum: make(map[int]int, len(doc.Phases))}
	for i, p := range doc.Phases {
		c.byNum[p.Number] = i
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the catalog lists phases 1..PhaseCount in order, each with
// at least one question, unique question ids and known kinds.
func (c *Catalog) Validate() error {
	if c == nil {
		return fmt.Errorf("questionnaire: nil catalog")
	}
	if len(c.phases) != PhaseCount {
		return fmt.Errorf("questionnaire: want %d phases, got %d", PhaseCount, len(c.phases))
	}
	for i, p := range c.phases {
		if p.Number != i+1 {
			return fmt.Errorf("questionnaire: phase at index %d has number %d", i, p.Number)
		}
		if p.Title == "" {
			return fmt.Errorf("questionnaire: phase %d has no title", p.Number)
		}
		if len(p.Questions) == 0 {
			return fmt.Errorf("questionnaire: phase %d has no questions", p.Number)
		}
		seen := map[string]bool{}
		for _, q := range p.Questions {
			if q.ID == "" {
				return fmt.Errorf("questionnaire: phase %d has a question without id", p.Number)
			}
			if seen[q.ID] {
				return fmt.Errorf("questionnaire: phase %d repeats question id %q", p.Number, q.ID)
			}
			seen[q.ID] = true
			if !validKinds[q.Kind] {
				return fmt.Errorf("questionnaire: phase %d question %q has unknown kind %q", p.Number, q.ID, q.Kind)
			}
		}
	}
	return nil
}

func (c *Catalog) Phase(n int) (Phase, bool) {
	i, ok := c.byNum[n]
	if !ok {
		return Phase{}, false
	}
	return c.phases[i], true
}

// Phases returns a copy of the phases in ascending order.
func (c *Catalog) Phases() []Phase {
	out := make([]Phase, len(c.phases))
	copy(out, c.phases)
	return out
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(phasesYAML)
	})
	return defaultCatalog, defaultErr
}
