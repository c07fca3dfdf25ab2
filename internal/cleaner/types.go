package cleaner

import "github.com/raaihank/vn-text-trim/internal/rules"

// Stage names a pipeline step that altered the text
type Stage string

const (
	StageSubstitution Stage = "substitution"
	StageDialogue     Stage = "dialogue"
	StageRepetition   Stage = "repetition"
)

// Result contains the outcome of cleaning one text
type Result struct {
	Text     string  `json:"text"`
	Changed  bool    `json:"changed"`
	Stages   []Stage `json:"stages,omitempty"`
	Skipped  bool    `json:"skipped,omitempty"` // rejected by the Japanese-only gate
	Original string  `json:"-"`
}

// StageNames returns the stages as plain strings, for logging
func (r Result) StageNames() []string {
	names := make([]string, len(r.Stages))
	for i, stage := range r.Stages {
		names[i] = string(stage)
	}
	return names
}

// Engine is what hosts call to clean text
type Engine interface {
	Clean(text string) (string, bool)
	Process(text string) Result
	RuleSet() *rules.RuleSet
}
