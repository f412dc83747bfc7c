package sensors

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed discovery.yaml
var discoveryYAML []byte

// Definition is the Home Assistant metadata for one published field.
type Definition struct {
	Name              string   `yaml:"name"`
	ObjectID          string   `yaml:"object_id"`
	UniqueID          string   `yaml:"unique_id"`
	DeviceClass       string   `yaml:"device_class"`
	UnitOfMeasurement string   `yaml:"unit_of_measurement"`
	Options           []string `yaml:"options"`
}

// LoadDefinitions parses the built-in discovery table.
func LoadDefinitions() ([]Definition, error) {
	return ParseDefinitions(discoveryYAML)
}

// ParseDefinitions decodes a YAML list of definitions. Entries without a
// unique_id use their object_id.
func ParseDefinitions(data []byte) ([]Definition, error) {
	var defs []Definition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse discovery definitions: %w", err)
	}
	for i := range defs {
		if defs[i].ObjectID == "" {
			return nil, fmt.Errorf("discovery definition %d (%q) has no object_id", i, defs[i].Name)
		}
		if defs[i].UniqueID == "" {
			defs[i].UniqueID = defs[i].ObjectID
		}
	}
	return defs, nil
}
