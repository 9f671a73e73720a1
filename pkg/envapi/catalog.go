package envapi

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Well-known catalog keys
const (
	KeyEndpointURL      = "ENDPOINT_URL"
	KeyEventProvider    = "EVENT_PROVIDER"
	KeyPaymentEndpoint  = "PAYMENT_ENDPOINT"
	KeyMerchantID       = "MERCHANT_ID"
	KeyMerchantPassword = "MERCHANT_PASSWORD"
	KeyRepo             = "Repo"
	KeyPSID             = "PSID"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// ErrNoValue is returned when a definition has no template and no supplied value
var ErrNoValue = errors.New("no value available")

// Definition describes how one variable is published
type Definition struct {
	Key         string `yaml:"key"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Secure      bool   `yaml:"secure"`
	Editable    bool   `yaml:"editable"`
	// Value is a text/template rendered per team. Empty means the value is supplied externally.
	Value string `yaml:"value,omitempty"`

	tmpl *template.Template
}

// TemplateData is the per-team input of a definition's value template
type TemplateData struct {
	Slug       string
	Name       string
	Org        string
	Host       string
	BaseURL    string
	BaseDomain string
	// Values holds externally supplied values by key, such as a generated team document
	Values map[string]string
}

// Options returns the attributes to store with the variable
func (d Definition) Options() VariableOptions {
	return VariableOptions{
		Description: d.Description,
		Category:    d.Category,
		Secure:      d.Secure,
		Editable:    d.Editable,
	}
}

// Templated reports whether the value is computed from team data
func (d Definition) Templated() bool {
	return d.tmpl != nil
}

// Render produces the value for one team. A supplied value in data.Values wins
// over the template.
func (d Definition) Render(data TemplateData) (string, error) {
	if v, ok := data.Values[d.Key]; ok && v != "" {
		return v, nil
	}
	if d.tmpl == nil {
		return "", fmt.Errorf("%w for %s of team %s", ErrNoValue, d.Key, data.Slug)
	}

	var buf bytes.Buffer
	if err := d.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s for team %s: %w", d.Key, data.Slug, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Catalog is an ordered set of variable definitions
type Catalog struct {
	defs  []Definition
	index map[string]int
}

// DefaultCatalog returns the built-in catalog
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in variable catalog is invalid: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog file. An empty path returns the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Variables []Definition `yaml:"variables"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(doc.Variables) == 0 {
		return nil, errors.New("catalog defines no variables")
	}

	c := &Catalog{index: make(map[string]int, len(doc.Variables))}
	for _, def := range doc.Variables {
		if !keyPattern.MatchString(def.Key) {
			return nil, fmt.Errorf("%w: catalog key %q", ErrInvalidVariable, def.Key)
		}
		if _, dup := c.index[def.Key]; dup {
			return nil, fmt.Errorf("catalog key %s is defined twice", def.Key)
		}
		if def.Category == "" {
			def.Category = DefaultCategory
		}
		if def.Value != "" {
			tmpl, err := template.New(def.Key).Option("missingkey=error").Parse(def.Value)
			if err != nil {
				return nil, fmt.Errorf("catalog key %s has an invalid value template: %w", def.Key, err)
			}
			def.tmpl = tmpl
		}
		c.index[def.Key] = len(c.defs)
		c.defs = append(c.defs, def)
	}
	return c, nil
}

// Lookup returns the definition for key
func (c *Catalog) Lookup(key string) (Definition, bool) {
	i, ok := c.index[key]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Keys lists the catalog keys in file order
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.defs))
	for i, d := range c.defs {
		keys[i] = d.Key
	}
	return keys
}

// Definitions returns the definitions for keys, all of them when keys is empty
func (c *Catalog) Definitions(keys ...string) ([]Definition, error) {
	if len(keys) == 0 {
		return append([]Definition(nil), c.defs...), nil
	}

	defs := make([]Definition, 0, len(keys))
	var unknown []string
	for _, k := range keys {
		d, ok := c.Lookup(k)
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		defs = append(defs, d)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown variable(s): %s (known: %s)", strings.Join(unknown, ", "), strings.Join(c.Keys(), ", "))
	}
	return defs, nil
}
