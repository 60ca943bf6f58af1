// Package templates provides the catalog of starter prompts: the built-in
// set compiled into the binary plus optional user templates from YAML.
package templates

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtin []byte

// Template is a starter prompt.
type Template struct {
	Title    string   `yaml:"title" json:"title"`
	Content  string   `yaml:"content" json:"content"`
	Category string   `yaml:"category" json:"category"`
	Tags     []string `yaml:"tags" json:"tags"`
	AIModel  string   `yaml:"ai_model" json:"aiModel"`
	Notes    string   `yaml:"notes" json:"notes,omitempty"`
}

// file is the top-level YAML structure.
type file struct {
	Templates []Template `yaml:"templates"`
}

// Catalog holds templates keyed by title in definition order.
type Catalog struct {
	byTitle map[string]*Template
	order   []string
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	c := &Catalog{byTitle: make(map[string]*Template)}
	if err := c.add(builtin); err != nil {
		return nil, fmt.Errorf("parse built-in templates: %w", err)
	}
	return c, nil
}

// Load returns the built-in catalog extended with the templates in the YAML
// file at path. A user template replaces a built-in one with the same title.
// A missing file is not an error.
func Load(path string) (*Catalog, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	if err := c.add(data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

func (c *Catalog) add(data []byte) error {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	for i := range f.Templates {
		t := &f.Templates[i]
		t.Title = strings.TrimSpace(t.Title)
		if t.Title == "" || strings.TrimSpace(t.Content) == "" {
			return fmt.Errorf("template %d: title and content are required", i+1)
		}
		if _, exists := c.byTitle[t.Title]; !exists {
			c.order = append(c.order, t.Title)
		}
		c.byTitle[t.Title] = t
	}
	return nil
}

// Get returns a template by title.
func (c *Catalog) Get(title string) (Template, bool) {
	t, ok := c.byTitle[title]
	if !ok {
		return Template{}, false
	}
	return *t, true
}

// All returns every template in definition order.
func (c *Catalog) All() []Template {
	out := make([]Template, 0, len(c.order))
	for _, title := range c.order {
		out = append(out, *c.byTitle[title])
	}
	return out
}

// Categories returns the distinct template categories in first-seen order.
func (c *Catalog) Categories() []string {
	return lo.Uniq(lo.Map(c.All(), func(t Template, _ int) string { return t.Category }))
}

// ByCategory returns the templates of one category; "" or "All" returns
// every template.
func (c *Catalog) ByCategory(category string) []Template {
	all := c.All()
	if category == "" || category == "All" {
		return all
	}
	return lo.Filter(all, func(t Template, _ int) bool { return t.Category == category })
}
