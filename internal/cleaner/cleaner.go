package cleaner

import (
	"errors"
	"sync/atomic"

	"github.com/raaihank/vn-text-trim/internal/rules"
)

// Cleaner runs the cleaning pipeline over a fixed rule set. It holds no
// mutable state and is safe for concurrent use.
type Cleaner struct {
	rules *rules.RuleSet
}

// New creates a cleaner for an already compiled rule set
func New(rs *rules.RuleSet) (*Cleaner, error) {
	if rs == nil {
		return nil, errors.New("cleaner: nil rule set")
	}
	return &Cleaner{rules: rs}, nil
}

// RuleSet returns the rules the cleaner was built with
func (c *Cleaner) RuleSet() *rules.RuleSet {
	return c.rules
}

// Clean returns the cleaned text and true, or false when nothing changed
func (c *Cleaner) Clean(text string) (string, bool) {
	result := c.Process(text)
	if !result.Changed {
		return "", false
	}
	return result.Text, true
}

// Process runs the pipeline selected by the rule set's mode
func (c *Cleaner) Process(text string) Result {
	result := Result{Text: text, Original: text}

	if c.rules.JapaneseOnly && !IsJapanese(text) {
		result.Skipped = true
		return result
	}

	switch c.rules.Mode {
	case rules.ModeRepetition:
		c.repetitionAware(&result)
	case rules.ModeDialogue:
		c.dialogueFirst(&result)
	default:
		c.flat(&result)
	}

	// Never report a change that leaves the text as it was.
	if result.Text == text {
		result.Stages = nil
		return result
	}
	result.Changed = true

	return result
}

func (c *Cleaner) flat(result *Result) {
	if out, ok := Substitute(c.rules.Substitutions, result.Text); ok {
		result.Text = out
		result.Stages = append(result.Stages, StageSubstitution)
	}
}

func (c *Cleaner) repetitionAware(result *Result) {
	if !c.rules.RepetitionRemoval {
		c.flat(result)
		return
	}

	if out, ok := Substitute(c.rules.Substitutions, result.Text); ok {
		result.Text = out
		result.Stages = append(result.Stages, StageSubstitution)
	}

	if out, ok := CollapseRepetition(result.Text); ok {
		result.Text = out
		result.Stages = append(result.Stages, StageRepetition)
	}
}

func (c *Cleaner) dialogueFirst(result *Result) {
	if payload, ok := ExtractDialogue(c.rules.Dialogue, result.Text); ok {
		result.Text = payload
		result.Stages = append(result.Stages, StageDialogue)
	}

	c.flat(result)
}

// Holder keeps the engine currently in use. Swapping installs a whole new
// Cleaner; callers that already loaded the old one finish with it.
type Holder struct {
	current atomic.Pointer[Cleaner]
}

// NewHolder creates a holder around an initial cleaner
func NewHolder(c *Cleaner) *Holder {
	h := &Holder{}
	h.current.Store(c)
	return h
}

// Load returns the current cleaner
func (h *Holder) Load() *Cleaner {
	return h.current.Load()
}

// Swap installs c and returns the previous cleaner
func (h *Holder) Swap(c *Cleaner) *Cleaner {
	return h.current.Swap(c)
}

// Clean cleans text with the current cleaner
func (h *Holder) Clean(text string) (string, bool) {
	return h.Load().Clean(text)
}

// Process processes text with the current cleaner
func (h *Holder) Process(text string) Result {
	return h.Load().Process(text)
}

// RuleSet returns the current cleaner's rules
func (h *Holder) RuleSet() *rules.RuleSet {
	return h.Load().RuleSet()
}
