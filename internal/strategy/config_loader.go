package strategy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is one strategy entry in the YAML config file.
type Definition struct {
	ID         string             `yaml:"id"`
	Name       string             `yaml:"name"`
	Type       Type               `yaml:"type"`
	Symbol     string             `yaml:"symbol"`
	GatewayKey string             `yaml:"gateway_key"`
	Parameters map[string]float64 `yaml:"parameters"`
	AutoStart  bool               `yaml:"auto_start"`
}

// definitionFile is the top-level YAML structure.
type definitionFile struct {
	Strategies []Definition `yaml:"strategies"`
}

// LoadDefinitions reads strategy definitions from a YAML file. Each entry's
// parameters are merged over the defaults for its type.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategy config: %w", err)
	}

	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse strategy config: %w", err)
	}

	for i := range file.Strategies {
		def := &file.Strategies[i]
		merged := DefaultConfig(def.Type)
		for k, v := range def.Parameters {
			merged[k] = v
		}
		def.Parameters = merged
	}
	return file.Strategies, nil
}

// Build constructs the strategy described by the definition.
func (d Definition) Build() (Strategy, error) {
	if d.Symbol == "" {
		return nil, fmt.Errorf("strategy %q: symbol required", d.Name)
	}
	return New(d.Type, d.ID, d.Symbol, Config(d.Parameters))
}
