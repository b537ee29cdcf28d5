package skilltree

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk shape of a hand-authored tree seed.
type seedFile struct {
	Tree   string       `yaml:"tree"`
	Skills []Definition `yaml:"skills"`
}

// LoadSeed reads a YAML seed file and builds a fresh graph from it. Seeds
// list definitions in any order; insertion is retried until every
// prerequisite resolves.
func LoadSeed(id TreeID, path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	if seed.Tree != "" && seed.Tree != string(id) {
		return nil, fmt.Errorf("seed %s declares tree %q, want %q", path, seed.Tree, id)
	}
	return BuildGraph(id, seed.Skills)
}

// BuildGraph assembles a graph from authored definitions, tolerating
// arbitrary declaration order.
func BuildGraph(id TreeID, defs []Definition) (*Graph, error) {
	g := NewGraph(id)

	pending := append([]Definition(nil), defs...)
	for len(pending) > 0 {
		progressed := false
		var stuck []Definition
		for _, def := range pending {
			ready := true
			for _, prereq := range def.Prerequisites {
				if g.Get(prereq) == nil {
					ready = false
					break
				}
			}
			if !ready {
				stuck = append(stuck, def)
				continue
			}
			if _, err := g.Merge(def, OriginAuthored); err != nil {
				return nil, fmt.Errorf("seed skill %s: %w", def.ID, err)
			}
			progressed = true
		}
		if !progressed {
			return nil, fmt.Errorf("seed has unresolvable prerequisites (first stuck skill: %s)", stuck[0].ID)
		}
		pending = stuck
	}
	return g, nil
}
