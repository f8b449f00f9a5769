package rangedef

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config lists the inflation of every tier. Leading and Trailing override
// Inflation for the side the viewport moves toward and away from.
type Config struct {
	Tiers []TierConfig `yaml:"tiers" mapstructure:"tiers"`
}

type TierConfig struct {
	Tier      string   `yaml:"tier" mapstructure:"tier"`
	Inflation float64  `yaml:"inflation" mapstructure:"inflation"`
	Leading   *float64 `yaml:"leading,omitempty" mapstructure:"leading"`
	Trailing  *float64 `yaml:"trailing,omitempty" mapstructure:"trailing"`
}

func (r TierConfig) tuning() Tuning {
	t := Tuning{Leading: r.Inflation, Trailing: r.Inflation}
	if r.Leading != nil {
		t.Leading = *r.Leading
	}
	if r.Trailing != nil {
		t.Trailing = *r.Trailing
	}
	return t
}

// DefaultConfig keeps one viewport-sized buffer for display and two for
// preload on a typical 500pt surface.
func DefaultConfig() Config {
	return Config{
		Tiers: []TierConfig{
			{Tier: "visible", Inflation: 0},
			{Tier: "display", Inflation: 500},
			{Tier: "preload", Inflation: 1000},
		},
	}
}

// ParseYAML decodes a tier configuration. Unknown keys are rejected.
func ParseYAML(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("cannot decode range config: %w", err)
	}
	return cfg, nil
}

// YAML encodes the configuration in the format ParseYAML reads.
func (r Config) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}
