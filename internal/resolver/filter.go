// internal/resolver/filter.go
package resolver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Filter is the structured recipient predicate stored on a campaign. Groups
// combine with AND; values within a group combine with OR, so
// {"cities":["Athens","Patras"]} matches customers in either city.
type Filter struct {
	Cities     []string `json:"cities,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Segments   []int64  `json:"segments,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// IsEmpty reports whether no group constrains the audience, meaning the whole
// org is targeted.
func (f *Filter) IsEmpty() bool {
	return len(f.Cities) == 0 && len(f.Tags) == 0 &&
		len(f.Segments) == 0 && len(f.Categories) == 0
}

const filterSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"cities":     {"type": "array", "items": {"type": "string", "minLength": 1}},
		"tags":       {"type": "array", "items": {"type": "string", "minLength": 1}},
		"segments":   {"type": "array", "items": {"type": "integer", "minimum": 1}},
		"categories": {"type": "array", "items": {"type": "string", "minLength": 1}}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(filterSchema)

// ParseFilter validates the stored filter document against the schema and
// decodes it. An empty document is a valid everyone-in-org filter.
func ParseFilter(doc string) (*Filter, error) {
	if strings.TrimSpace(doc) == "" {
		return &Filter{}, nil
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("filter schema check: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, fmt.Errorf("filter does not match schema: %s", strings.Join(msgs, "; "))
	}

	var f Filter
	if err := json.Unmarshal([]byte(doc), &f); err != nil {
		return nil, fmt.Errorf("decode filter: %w", err)
	}
	return &f, nil
}
