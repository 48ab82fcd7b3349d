package config

import "fmt"

// LearningMode selects which goals may produce generalized chunks.
type LearningMode string

const (
	LearningOff    LearningMode = "off"
	LearningOn     LearningMode = "on"
	LearningOnly   LearningMode = "only"   // variablize only goals on the force-learn list
	LearningExcept LearningMode = "except" // variablize except goals on the don't-learn list
)

// LearningConfig configures chunk building.
type LearningConfig struct {
	Mode      LearningMode `yaml:"mode"`
	AllGoals  bool         `yaml:"all_goals"`  // false = bottom-up chunking only
	MaxChunks int          `yaml:"max_chunks"` // per decision cycle
	LongNames bool         `yaml:"long_names"` // chunk-N*dD*<impasse>*K

	ChunkPrefix         string `yaml:"chunk_prefix"`
	JustificationPrefix string `yaml:"justification_prefix"`

	// LocalNegations keeps rules generalized when negated conditions on
	// subgoal-local identifiers had to be dropped. When false such rules are
	// built as justifications.
	LocalNegations bool `yaml:"local_negations"`

	// Warnings reports discarded negated conditions and the max-chunks cutoff.
	Warnings bool `yaml:"warnings"`
}

// DefaultLearningConfig returns the default learning policy.
func DefaultLearningConfig() LearningConfig {
	return LearningConfig{
		Mode:                LearningOn,
		AllGoals:            true,
		MaxChunks:           50,
		ChunkPrefix:         "chunk",
		JustificationPrefix: "justification",
		LocalNegations:      true,
		Warnings:            true,
	}
}

// Validate checks the learning policy.
func (c *LearningConfig) Validate() error {
	switch c.Mode {
	case LearningOff, LearningOn, LearningOnly, LearningExcept:
	default:
		return fmt.Errorf("invalid learning mode: %s", c.Mode)
	}
	if c.MaxChunks < 1 {
		return fmt.Errorf("max_chunks must be >= 1")
	}
	if c.ChunkPrefix == "" || c.JustificationPrefix == "" {
		return fmt.Errorf("chunk and justification prefixes must be set")
	}
	if c.ChunkPrefix == c.JustificationPrefix {
		return fmt.Errorf("chunk and justification prefixes must differ")
	}
	return nil
}
