// Package catalog loads the static list of works the scraper knows how to acquire.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// ErrUnknownWork is returned when a requested work id is not in the catalog.
var ErrUnknownWork = errors.New("unknown work")

// Entry describes one work. Chapters lists page slugs in acquisition order;
// a nil Chapters marks a single-page work.
type Entry struct {
	ID       string   `yaml:"id"`
	URL      string   `yaml:"url"`
	Title    string   `yaml:"title"`
	TitleEn  string   `yaml:"titleEn"`
	Chapters []string `yaml:"chapters"`
}

// SinglePage reports whether the whole work lives on its entry page.
func (e Entry) SinglePage() bool {
	return e.Chapters == nil
}

// PageURL returns the address of the given chapter slug.
func (e Entry) PageURL(slug string) string {
	return strings.TrimRight(e.URL, "/") + "/" + slug
}

// Catalog is the ordered set of works plus the attribution stamped on every document.
type Catalog struct {
	Source string  `yaml:"source"`
	Works  []Entry `yaml:"works"`
}

// Load reads a catalog file. An empty path selects the built-in catalog.
func Load(path string) (Catalog, error) {
	data := defaultCatalog
	if path != "" {
		raw, err := os.ReadFile(path) // #nosec G304 -- operator supplied catalog path.
		if err != nil {
			return Catalog{}, fmt.Errorf("read catalog %s: %w", path, err)
		}
		data = raw
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Validate checks ids are unique and every entry has an address.
func (c Catalog) Validate() error {
	if len(c.Works) == 0 {
		return errors.New("catalog has no works")
	}
	seen := make(map[string]struct{}, len(c.Works))
	for i, w := range c.Works {
		if strings.TrimSpace(w.ID) == "" {
			return fmt.Errorf("catalog work %d has no id", i)
		}
		if _, dup := seen[w.ID]; dup {
			return fmt.Errorf("catalog work %q is listed twice", w.ID)
		}
		seen[w.ID] = struct{}{}
		if strings.TrimSpace(w.URL) == "" {
			return fmt.Errorf("catalog work %q has no url", w.ID)
		}
		slugs := make(map[string]struct{}, len(w.Chapters))
		for _, slug := range w.Chapters {
			if _, dup := slugs[slug]; dup {
				return fmt.Errorf("catalog work %q lists chapter %q twice", w.ID, slug)
			}
			slugs[slug] = struct{}{}
		}
	}
	return nil
}

// Lookup finds a work by id.
func (c Catalog) Lookup(id string) (Entry, bool) {
	for _, w := range c.Works {
		if w.ID == id {
			return w, true
		}
	}
	return Entry{}, false
}

// IDs returns every work id in catalog order.
func (c Catalog) IDs() []string {
	ids := make([]string, 0, len(c.Works))
	for _, w := range c.Works {
		ids = append(ids, w.ID)
	}
	return ids
}

// Selection is the outcome of resolving command line work ids.
type Selection struct {
	Works   []Entry
	Unknown []string
}

// Select resolves the works to process. A non-empty resumeFrom selects that
// work and everything after it in catalog order and takes precedence over ids.
// Otherwise ids select specific works, and no ids selects the whole catalog.
// Unknown ids are reported; ErrUnknownWork is returned only when nothing matched.
func (c Catalog) Select(ids []string, resumeFrom string) (Selection, error) {
	if resumeFrom != "" {
		for i, w := range c.Works {
			if w.ID == resumeFrom {
				return Selection{Works: append([]Entry(nil), c.Works[i:]...)}, nil
			}
		}
		return Selection{Unknown: []string{resumeFrom}}, fmt.Errorf("%w: %s", ErrUnknownWork, resumeFrom)
	}
	if len(ids) == 0 {
		return Selection{Works: append([]Entry(nil), c.Works...)}, nil
	}

	var sel Selection
	for _, id := range ids {
		entry, ok := c.Lookup(id)
		if !ok {
			sel.Unknown = append(sel.Unknown, id)
			continue
		}
		sel.Works = append(sel.Works, entry)
	}
	if len(sel.Works) == 0 {
		return sel, fmt.Errorf("%w: %s", ErrUnknownWork, strings.Join(sel.Unknown, ", "))
	}
	return sel, nil
}
