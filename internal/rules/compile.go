package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"

	"github.com/raaihank/vn-text-trim/internal/config"
)

// Compile builds a RuleSet from configuration. Rules from extra are appended
// after the ones declared in cfg. The first pattern that fails to compile
// aborts the whole set.
func Compile(cfg config.RulesConfig, extra ...config.ReplaceConfig) (*RuleSet, error) {
	declared := make([]config.ReplaceConfig, 0, len(cfg.Replace)+len(extra))
	declared = append(declared, cfg.Replace...)
	declared = append(declared, extra...)

	rs := &RuleSet{
		Substitutions:     make([]SubstitutionRule, 0, len(declared)),
		RepetitionRemoval: cfg.TextRepetitions,
		JapaneseOnly:      cfg.JapaneseOnly,
	}

	for i, rule := range declared {
		if rule.Limit < 0 {
			return nil, fmt.Errorf("%w: replace rule %d has negative limit %d", ErrInvalidRuleSet, i, rule.Limit)
		}

		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: replace rule %d (%q): %v", ErrInvalidPattern, i, rule.Pattern, err)
		}

		rs.Substitutions = append(rs.Substitutions, SubstitutionRule{
			Pattern:     pattern,
			Replacement: rule.Replacement,
			Limit:       rule.Limit,
		})
	}

	mode, err := resolveMode(cfg)
	if err != nil {
		return nil, err
	}
	rs.Mode = mode

	if mode == ModeDialogue {
		source := cfg.Dialogue.Pattern
		if source == "" {
			source = DefaultDialoguePattern
		}

		dialogue, err := regexp.Compile(source)
		if err != nil {
			return nil, fmt.Errorf("%w: dialogue pattern (%q): %v", ErrInvalidPattern, source, err)
		}
		if dialogue.NumSubexp() < 1 {
			return nil, fmt.Errorf("%w: dialogue pattern (%q) has no capture group", ErrInvalidRuleSet, source)
		}
		rs.Dialogue = dialogue
	}

	rs.fingerprint = rs.computeFingerprint()

	return rs, nil
}

// resolveMode picks the composition order. An explicit mode wins, then the
// dialogue toggle, then the repetition toggle.
func resolveMode(cfg config.RulesConfig) (Mode, error) {
	switch Mode(cfg.Mode) {
	case ModeFlat, ModeRepetition, ModeDialogue:
		return Mode(cfg.Mode), nil
	case "":
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidRuleSet, cfg.Mode)
	}

	switch {
	case cfg.Dialogue.Extract:
		return ModeDialogue, nil
	case cfg.TextRepetitions:
		return ModeRepetition, nil
	default:
		return ModeFlat, nil
	}
}

// Fingerprint identifies the compiled rules; equal rule sets share it
func (rs *RuleSet) Fingerprint() string {
	if rs.fingerprint == "" {
		return rs.computeFingerprint()
	}
	return rs.fingerprint
}

func (rs *RuleSet) computeFingerprint() string {
	hasher := sha256.New()

	writeField := func(s string) {
		hasher.Write([]byte(strconv.Itoa(len(s))))
		hasher.Write([]byte{':'})
		hasher.Write([]byte(s))
	}

	writeField(string(rs.Mode))
	writeField(strconv.FormatBool(rs.RepetitionRemoval))
	writeField(strconv.FormatBool(rs.JapaneseOnly))
	if rs.Dialogue != nil {
		writeField(rs.Dialogue.String())
	} else {
		writeField("")
	}

	for _, rule := range rs.Substitutions {
		writeField(rule.Pattern.String())
		writeField(rule.Replacement)
		writeField(strconv.Itoa(rule.Limit))
	}

	return hex.EncodeToString(hasher.Sum(nil))[:16]
}
