// Package entities registers the roster entity definitions with the core
// catalog. Import this package to ensure all entities are registered.
package entities

import (
	_ "embed"
	"fmt"

	"github.com/JonMunkholm/RosterImport/internal/core"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

type catalogFile struct {
	Entities []core.EntityDefinition `yaml:"entities"`
}

func init() {
	if err := Load(core.DefaultCatalog()); err != nil {
		panic(err)
	}
}

// Definitions decodes the embedded catalog.
func Definitions() ([]core.EntityDefinition, error) {
	var file catalogFile
	if err := yaml.Unmarshal(catalogYAML, &file); err != nil {
		return nil, fmt.Errorf("decode entity catalog: %w", err)
	}
	return file.Entities, nil
}

// Load registers every entity and its cross-field rules on c.
func Load(c *core.Catalog) error {
	defs, err := Definitions()
	if err != nil {
		return err
	}
	for _, def := range defs {
		if err := c.Register(def); err != nil {
			return err
		}
	}
	registerRules(c)
	return nil
}
