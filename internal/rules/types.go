package rules

import (
	"errors"
	"regexp"
)

// DefaultDialoguePattern matches an opening 「 or （, skips any whitespace
// (Unicode White_Space, so U+3000 counts) and captures up to the next 」,
// plain space or ）.
const DefaultDialoguePattern = `[「（][\s\v\x{85}\p{Z}]*([^」 ）]+)`

var (
	// ErrInvalidPattern indicates a rule pattern failed to compile
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrInvalidRuleSet indicates a structurally invalid rule set
	ErrInvalidRuleSet = errors.New("invalid rule set")
)

// Mode selects how the cleaning stages are composed
type Mode string

const (
	// ModeFlat runs substitutions only
	ModeFlat Mode = "flat"
	// ModeRepetition runs substitutions, then repetition collapse
	ModeRepetition Mode = "repetition"
	// ModeDialogue extracts dialogue first, then runs substitutions on it
	ModeDialogue Mode = "dialogue"
)

// SubstitutionRule is one compiled pattern/replacement/limit triple
type SubstitutionRule struct {
	Pattern     *regexp.Regexp
	Replacement string
	Limit       int // 0 replaces every match
}

// RuleSet is the validated, read-only collection of cleaning rules
type RuleSet struct {
	Substitutions     []SubstitutionRule
	Dialogue          *regexp.Regexp
	RepetitionRemoval bool
	Mode              Mode
	JapaneseOnly      bool

	fingerprint string
}
