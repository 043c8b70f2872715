package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Section is a parsed configuration tree node: scalar values, string
// lists, and named sub-sections in their configured order.
type Section struct {
	scalars  map[string]string
	lists    map[string][]string
	children map[string]*Section
	order    []string // sub-section names in configuration order
}

// NamedSection pairs a sub-section with its configured name.
type NamedSection struct {
	Name    string
	Section *Section
}

// NewSection returns an empty section, useful for tests.
func NewSection() *Section {
	return &Section{
		scalars:  make(map[string]string),
		lists:    make(map[string][]string),
		children: make(map[string]*Section),
	}
}

// Get returns the scalar value for key.
func (s *Section) Get(key string) (string, bool) {
	v, ok := s.scalars[key]
	return v, ok
}

// GetDefault returns the scalar value for key, or def when absent.
func (s *Section) GetDefault(key, def string) string {
	if v, ok := s.scalars[key]; ok {
		return v
	}
	return def
}

// Has reports whether key is present as a scalar or a list.
func (s *Section) Has(key string) bool {
	if _, ok := s.scalars[key]; ok {
		return true
	}
	_, ok := s.lists[key]
	return ok
}

// List returns the values for key. A scalar key yields a single-element
// list so sequence and scalar configuration are interchangeable.
func (s *Section) List(key string) ([]string, bool) {
	if v, ok := s.lists[key]; ok {
		return v, true
	}
	if v, ok := s.scalars[key]; ok {
		return []string{v}, true
	}
	return nil, false
}

// Child returns the named sub-section.
func (s *Section) Child(name string) (*Section, bool) {
	c, ok := s.children[name]
	return c, ok
}

// Children returns all sub-sections in configuration order.
func (s *Section) Children() []NamedSection {
	out := make([]NamedSection, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, NamedSection{Name: name, Section: s.children[name]})
	}
	return out
}

// Set stores a scalar value, for building sections in tests.
func (s *Section) Set(key, value string) *Section {
	s.scalars[key] = value
	return s
}

// SetList stores a list value.
func (s *Section) SetList(key string, values ...string) *Section {
	s.lists[key] = values
	return s
}

// AddChild attaches a named sub-section.
func (s *Section) AddChild(name string, child *Section) *Section {
	s.children[name] = child
	s.order = append(s.order, name)
	return s
}

// sectionFromNode builds a Section from a YAML mapping node, preserving
// sub-section order.
func sectionFromNode(node *yaml.Node) (*Section, error) {
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected mapping, got yaml kind %d", node.Kind)
	}

	sect := NewSection()
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]

		switch val.Kind {
		case yaml.ScalarNode:
			sect.scalars[key] = val.Value
		case yaml.SequenceNode:
			items := make([]string, 0, len(val.Content))
			for _, item := range val.Content {
				if item.Kind != yaml.ScalarNode {
					return nil, fmt.Errorf("key %q: list items must be scalars", key)
				}
				items = append(items, item.Value)
			}
			sect.lists[key] = items
		case yaml.MappingNode:
			child, err := sectionFromNode(val)
			if err != nil {
				return nil, fmt.Errorf("section %q: %w", key, err)
			}
			sect.AddChild(key, child)
		case yaml.AliasNode:
			return nil, fmt.Errorf("key %q: aliases are not supported", key)
		}
	}
	return sect, nil
}

// ToBool parses a free-form truthy/falsy configuration string.
func ToBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "on":
		return true, nil
	case "false", "no", "n", "off":
		return false, nil
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n != 0, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}
