package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/jason-s-yu/memoria/internal/game"
	"gopkg.in/yaml.v3"
)

// LoadRules returns the default rules overlaid with the YAML file at path.
// Keys missing from the file keep their default value. An empty path yields the defaults.
func LoadRules(path string) (game.Rules, error) {
	rules := game.DefaultRules()
	if strings.TrimSpace(path) == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return game.Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes YAML rules on top of the defaults and validates the result.
func ParseRules(data []byte) (game.Rules, error) {
	rules := game.DefaultRules()
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return game.Rules{}, fmt.Errorf("decode rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return game.Rules{}, err
	}
	return rules, nil
}
