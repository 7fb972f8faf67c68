// Package output provides a modular framework for post-processing job
// stdout lines with configurable filter chains.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	FilterTrim         string = "trim"
	FilterFields       string = "fields"
	FilterKeyValueJSON string = "key_value_json"
)

// Filter transforms a slice of output lines.
type Filter interface {
	Apply([]string) ([]string, error)
	Name() string
}

// Chain manages a collection of filters and applies them in sequence.
type Chain struct {
	filters map[string]Filter
}

func NewChain() *Chain {
	c := &Chain{filters: make(map[string]Filter)}
	c.Register(&TrimFilter{})
	c.Register(&FieldsFilter{})
	c.Register(&KeyValueJSONFilter{})
	return c
}

// Register adds a filter to the chain.
func (c *Chain) Register(f Filter) {
	c.filters[f.Name()] = f
}

// Apply runs the named filters over lines in order.
func (c *Chain) Apply(lines []string, names ...string) ([]string, error) {
	for _, name := range names {
		if _, exists := c.filters[name]; !exists {
			return nil, fmt.Errorf("filter %q not registered", name)
		}
	}
	result := lines
	for _, name := range names {
		var err error
		result, err = c.filters[name].Apply(result)
		if err != nil {
			return nil, fmt.Errorf("%s filter failed: %w", name, err)
		}
	}
	return result, nil
}

// TrimFilter trims whitespace from each line.
type TrimFilter struct{}

func (f *TrimFilter) Name() string { return FilterTrim }
func (f *TrimFilter) Apply(lines []string) ([]string, error) {
	trimmed := make([]string, len(lines))
	for i, line := range lines {
		trimmed[i] = strings.TrimSpace(line)
	}
	return trimmed, nil
}

// FieldsFilter splits each line into whitespace-separated fields.
type FieldsFilter struct{}

func (f *FieldsFilter) Name() string { return FilterFields }
func (f *FieldsFilter) Apply(lines []string) ([]string, error) {
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		result = append(result, strings.Fields(line)...)
	}
	return result, nil
}

// KeyValueJSONFilter folds "key: value" lines into a single JSON object.
type KeyValueJSONFilter struct{}

func (f *KeyValueJSONFilter) Name() string { return FilterKeyValueJSON }
func (f *KeyValueJSONFilter) Apply(lines []string) ([]string, error) {
	if len(lines) == 0 {
		return lines, nil
	}
	kv := make(map[string]string)
	for _, line := range lines {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("empty key in line: %q", line)
		}
		kv[key] = strings.TrimSpace(value)
	}
	encoded, err := json.Marshal(kv)
	if err != nil {
		return nil, fmt.Errorf("key_value marshal error: %w", err)
	}
	return []string{string(encoded)}, nil
}
