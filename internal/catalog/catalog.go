package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

//go:embed definitions/*.yaml
var builtin embed.FS

// Catalog is a set of scenario definitions indexed by name.
type Catalog struct {
	defs map[string]*Definition
}

// Builtin loads the definitions shipped with the binary.
func Builtin() (*Catalog, error) {
	return Load(builtin, "definitions")
}

// Load reads every .yaml/.yml file in dir of fsys.
func Load(fsys fs.FS, dir string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenario directory: %w", err)
	}

	c := &Catalog{defs: make(map[string]*Definition)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		p := path.Join(dir, name)
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		d, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", p, err)
		}
		if err := c.Add(d); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return c, nil
}

// LoadFile parses a single definition from disk.
func LoadFile(filename string) (*Definition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	return Parse(data)
}

// Add registers a validated definition.
func (c *Catalog) Add(d *Definition) error {
	if _, dup := c.defs[d.Name]; dup {
		return fmt.Errorf("scenario %q defined twice", d.Name)
	}
	c.defs[d.Name] = d
	return nil
}

// Get returns a definition by name.
func (c *Catalog) Get(name string) (*Definition, error) {
	d, ok := c.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScenario, name)
	}
	return d, nil
}

// List returns every definition sorted by name.
func (c *Catalog) List() []*Definition {
	out := make([]*Definition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
