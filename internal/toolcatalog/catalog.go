// Package toolcatalog is the read-only catalog of external tool descriptions
// offered to the model as prompt context.
package toolcatalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Tool struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Group is one installed tool server and its tools, in declaration order.
type Group struct {
	Name  string `yaml:"name" json:"name"`
	Tools []Tool `yaml:"tools" json:"tools"`
}

// Category names a set of groups. Groups that are not installed may appear.
type Category struct {
	Name   string   `yaml:"name" json:"name"`
	Groups []string `yaml:"groups" json:"groups"`
}

// Suggestion is a group of tools recommended for a particular message.
type Suggestion struct {
	Group  string   `json:"category"`
	Tools  []string `json:"tools"`
	Reason string   `json:"reason"`
}

type suggestionRule struct {
	Group    string   `yaml:"group"`
	Keywords []string `yaml:"keywords"`
	Tools    []string `yaml:"tools"`
	Reason   string   `yaml:"reason"`
}

type document struct {
	Groups      []Group          `yaml:"groups"`
	Categories  []Category       `yaml:"categories"`
	Suggestions []suggestionRule `yaml:"suggestions"`
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	groups     []Group
	index      map[string]int
	categories []Category
	rules      []suggestionRule
}

// Default parses the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tool catalog: %w", err)
	}

	c := &Catalog{
		groups:     doc.Groups,
		index:      make(map[string]int, len(doc.Groups)),
		categories: doc.Categories,
		rules:      doc.Suggestions,
	}
	for i, g := range doc.Groups {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			return nil, fmt.Errorf("tool catalog group %d has no name", i)
		}
		if _, dup := c.index[name]; dup {
			return nil, fmt.Errorf("tool catalog group %q declared twice", name)
		}
		c.index[name] = i
	}
	for i := range c.rules {
		for j, kw := range c.rules[i].Keywords {
			c.rules[i].Keywords[j] = strings.ToLower(kw)
		}
	}
	return c, nil
}

// All returns every installed group.
func (c *Catalog) All() Listing {
	out := make(Listing, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, cloneGroup(g))
	}
	return out
}

func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	for i, cat := range c.categories {
		out[i] = Category{Name: cat.Name, Groups: append([]string(nil), cat.Groups...)}
	}
	return out
}

// GroupNames lists installed groups in declaration order.
func (c *Catalog) GroupNames() []string {
	out := make([]string, len(c.groups))
	for i, g := range c.groups {
		out[i] = g.Name
	}
	return out
}

// ByCategory returns the installed groups a category names. Unknown
// categories and uninstalled members yield nothing.
func (c *Catalog) ByCategory(category string) Listing {
	out := Listing{}
	for _, cat := range c.categories {
		if cat.Name != category {
			continue
		}
		for _, name := range cat.Groups {
			if i, ok := c.index[name]; ok {
				out = append(out, cloneGroup(c.groups[i]))
			}
		}
		break
	}
	return out
}

// Search matches query case-insensitively against tool names and
// descriptions. Groups without a match are left out.
func (c *Catalog) Search(query string) Listing {
	q := strings.ToLower(query)
	out := Listing{}
	for _, g := range c.groups {
		var hits []Tool
		for _, t := range g.Tools {
			if strings.Contains(strings.ToLower(t.Name), q) || strings.Contains(strings.ToLower(t.Description), q) {
				hits = append(hits, t)
			}
		}
		if len(hits) > 0 {
			out = append(out, Group{Name: g.Name, Tools: hits})
		}
	}
	return out
}

// Suggest applies the keyword rules to message in rule order.
func (c *Catalog) Suggest(message string) []Suggestion {
	lower := strings.ToLower(message)
	var out []Suggestion
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				out = append(out, Suggestion{
					Group:  rule.Group,
					Tools:  append([]string(nil), rule.Tools...),
					Reason: rule.Reason,
				})
				break
			}
		}
	}
	return out
}

// Context renders the tool fragment appended to the system prompt. The
// category enumeration is always present; suggestions only when a rule
// matched.
func (c *Catalog) Context(message string) string {
	var b strings.Builder
	b.WriteString("\n\n=== MCP TOOLS AVAILABLE ===\n")

	if suggestions := c.Suggest(message); len(suggestions) > 0 {
		b.WriteString("SUGGESTED TOOLS for this request:\n")
		for _, s := range suggestions {
			fmt.Fprintf(&b, "%s: %s (%s)\n", s.Group, strings.Join(s.Tools, ", "), s.Reason)
		}
		b.WriteString("\n")
	}

	b.WriteString("TOOL CATEGORIES:\n")
	for _, cat := range c.categories {
		fmt.Fprintf(&b, "%s: %s\n", cat.Name, strings.Join(cat.Groups, ", "))
	}

	b.WriteString("\nI can use these tools to help with your request. Just ask me to use specific MCP tools or I can suggest the best ones for your task.")
	return b.String()
}

func cloneGroup(g Group) Group {
	return Group{Name: g.Name, Tools: append([]Tool(nil), g.Tools...)}
}

// Listing is an ordered set of groups. It encodes as
// {"group": {"tool": "description"}} with declaration order preserved.
type Listing []Group

func (l Listing) ToolCount() int {
	n := 0
	for _, g := range l {
		n += len(g.Tools)
	}
	return n
}

func (l Listing) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, g := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, g.Name); err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		for j, t := range g.Tools {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeKey(&buf, t.Name); err != nil {
				return nil, err
			}
			desc, err := json.Marshal(t.Description)
			if err != nil {
				return nil, err
			}
			buf.Write(desc)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	raw, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(raw)
	buf.WriteByte(':')
	return nil
}
