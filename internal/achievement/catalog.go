package achievement

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Entry is the static display metadata for one achievement type.
type Entry struct {
	Title    string `yaml:"title" json:"title"`
	Subtitle string `yaml:"subtitle" json:"subtitle"`
	Icon     string `yaml:"icon" json:"icon"`
	Theme    string `yaml:"theme" json:"theme"`
	Category string `yaml:"category" json:"category"`
}

// Catalog maps achievement types to their metadata.
type Catalog map[string]Entry

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog decodes a YAML catalog.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse achievement catalog: %w", err)
	}
	if c == nil {
		c = Catalog{}
	}
	return c, nil
}

// Lookup returns the entry for typ. Unknown types get an entry titled
// with the type key so an unlock is never lost for want of metadata.
func (c Catalog) Lookup(typ string) Entry {
	if e, ok := c[typ]; ok {
		return e
	}
	return Entry{Title: typ, Category: "other"}
}
