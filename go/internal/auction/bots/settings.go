package bots

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings configures bot bidding globally.
type Settings struct {
	Enabled     bool          `yaml:"enabled"`
	MinSpacing  time.Duration `yaml:"min_spacing"`
	Checkpoints []Checkpoint  `yaml:"checkpoints"`
}

// DefaultSettings enables bots with the standard checkpoints.
func DefaultSettings() Settings {
	return Settings{
		Enabled:     true,
		MinSpacing:  time.Second,
		Checkpoints: DefaultCheckpoints(),
	}
}

// LoadSettings reads a YAML settings file. Missing keys keep their defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read bot settings: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings decodes YAML settings on top of the defaults.
func ParseSettings(data []byte) (Settings, error) {
	s := DefaultSettings()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse bot settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate rejects checkpoints that can never fire or probabilities outside [0,1].
func (s Settings) Validate() error {
	if s.MinSpacing < 0 {
		return fmt.Errorf("min_spacing must not be negative")
	}
	seen := make(map[int]bool, len(s.Checkpoints))
	for _, cp := range s.Checkpoints {
		if cp.Remaining <= 0 {
			return fmt.Errorf("checkpoint remaining must be positive, got %d", cp.Remaining)
		}
		if cp.Probability < 0 || cp.Probability > 1 {
			return fmt.Errorf("checkpoint %ds probability %v out of range", cp.Remaining, cp.Probability)
		}
		if seen[cp.Remaining] {
			return fmt.Errorf("duplicate checkpoint %ds", cp.Remaining)
		}
		seen[cp.Remaining] = true
	}
	return nil
}
