package rules

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/vn-text-trim/internal/config"
)

// Load compiles the rules of cfg. When a rule store is configured, its
// enabled rules are appended after the rules of the file.
func Load(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*RuleSet, error) {
	var extra []config.ReplaceConfig

	if cfg.RuleStore.DatabaseURL != "" {
		store, err := NewStore(cfg.RuleStore, logger)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		extra, err = store.LoadRules(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load stored rules: %w", err)
		}
	}

	rs, err := Compile(cfg.RulesConfig, extra...)
	if err != nil {
		return nil, err
	}

	logger.Info("Rules compiled",
		zap.String("mode", string(rs.Mode)),
		zap.Int("file_rules", len(cfg.Replace)),
		zap.Int("stored_rules", len(extra)),
		zap.Bool("repetition_removal", rs.RepetitionRemoval),
		zap.Bool("dialogue", rs.Dialogue != nil),
		zap.Bool("japanese_only", rs.JapaneseOnly),
		zap.String("fingerprint", rs.Fingerprint()))

	return rs, nil
}
