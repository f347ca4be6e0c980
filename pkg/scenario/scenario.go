package scenario

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/divergence-engine/pkg/state"
)

//go:embed data/divergence.yaml
var defaultYAML []byte

// EndingCopy is the title and closing text shown when the story ends
// without the model supplying its own.
type EndingCopy struct {
	Title string `yaml:"title" json:"title"`
	Text  string `yaml:"text" json:"text"`
}

// Scenario is the game configuration the prompts are built from.
type Scenario struct {
	Title       string                          `yaml:"title" json:"title"`             // Display title of the game
	Role        string                          `yaml:"role" json:"role"`               // Who the model plays
	Copyright   []string                        `yaml:"copyright" json:"copyright"`     // Copyright-safety rules
	Protagonist []string                        `yaml:"protagonist" json:"protagonist"` // Facts about the protagonist
	Style       string                          `yaml:"style" json:"style"`             // Prose style
	Output      []string                        `yaml:"output" json:"output"`           // Output format rules
	Chapters    map[state.Chapter]string        `yaml:"chapters" json:"chapters"`       // Per-chapter notes
	Endings     map[state.EndingType]EndingCopy `yaml:"endings" json:"endings"`         // Default ending copy
}

// Load decodes and validates a scenario. Unknown keys are rejected.
func Load(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads a scenario from disk.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Load(data)
}

var loadDefault = sync.OnceValues(func() (*Scenario, error) {
	return Load(defaultYAML)
})

// Default returns the embedded "Ver Potter: Divergence" scenario. The
// returned value is shared and must not be modified.
func Default() (*Scenario, error) {
	return loadDefault()
}

// Validate reports every problem found, joined into one error.
func (s *Scenario) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Title) == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if strings.TrimSpace(s.Role) == "" {
		errs = append(errs, errors.New("role is required"))
	}
	if len(s.Output) == 0 {
		errs = append(errs, errors.New("at least one output rule is required"))
	}
	for c := range s.Chapters {
		if !c.Valid() {
			errs = append(errs, fmt.Errorf("chapters: unknown chapter %q", c))
		}
	}
	for _, t := range []state.EndingType{state.EndingGood, state.EndingBad} {
		e, ok := s.Endings[t]
		if !ok || strings.TrimSpace(e.Title) == "" || strings.TrimSpace(e.Text) == "" {
			errs = append(errs, fmt.Errorf("endings: %s needs a title and text", t))
		}
	}
	for t := range s.Endings {
		if _, ok := state.ParseEndingType(string(t)); !ok {
			errs = append(errs, fmt.Errorf("endings: unknown ending type %q", t))
		}
	}
	return errors.Join(errs...)
}

// ChapterNote returns the note for c, or "" when none is configured.
func (s *Scenario) ChapterNote(c state.Chapter) string {
	return s.Chapters[c]
}

// Ending returns the default copy for an ending type.
func (s *Scenario) Ending(t state.EndingType) (EndingCopy, bool) {
	e, ok := s.Endings[t]
	return e, ok
}
