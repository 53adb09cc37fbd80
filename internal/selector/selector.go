// Package selector picks the profile sections relevant to a user message.
package selector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/personabot/internal/profile"
)

// Field is one profile section a rule contributes.
type Field struct {
	Name string
	// Default is emitted when the profile has no such section.
	Default any
	// OmitEmpty drops the section when it is missing or empty.
	OmitEmpty bool
}

// Rule maps a keyword set to the sections it pulls in.
type Rule struct {
	Name     string
	Keywords []string
	Fields   []Field
}

// DefaultRules is the keyword table used by New.
var DefaultRules = []Rule{
	{
		Name:     "skills",
		Keywords: []string{"skill", "stack", "tool", "tech", "technology"},
		Fields:   []Field{{Name: "skills", Default: map[string]any{}}},
	},
	{
		Name:     "experience",
		Keywords: []string{"job", "work", "experience", "role", "company", "employment", "project"},
		Fields:   []Field{{Name: "experience", Default: []any{}}},
	},
	{
		Name:     "education",
		Keywords: []string{"school", "education", "degree", "wgu", "university", "college"},
		Fields:   []Field{{Name: "education", Default: []any{}}},
	},
	{
		Name:     "certifications",
		Keywords: []string{"cert", "license", "certification", "certifications"},
		Fields:   []Field{{Name: "certifications", Default: []any{}}},
	},
	{
		Name: "personal",
		Keywords: []string{
			"personal", "hobby", "hobbies", "favorite", "favorites",
			"kids", "children", "family", "color", "food", "foods",
		},
		Fields: []Field{{Name: "personal", Default: map[string]any{}}},
	},
	{
		Name:     "crisis",
		Keywords: []string{"kill", "suicide", "unalive", "hurt"},
		Fields:   []Field{{Name: "suicide", Default: []any{}}},
	},
	{
		Name:     "contact",
		Keywords: []string{"contact", "email", "phone", "address", "website", "linkedin"},
		Fields: []Field{
			{Name: "contact", OmitEmpty: true},
			{Name: "websites", OmitEmpty: true},
		},
	},
}

// Selector is immutable and safe for concurrent use.
type Selector struct {
	rules []Rule
}

// New returns a Selector using rules, or DefaultRules when rules is empty.
func New(rules ...Rule) *Selector {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Selector{rules: rules}
}

// Matches returns the names of the rules whose keywords occur in message.
func (s *Selector) Matches(message string) []string {
	text := strings.ToLower(message)
	var names []string
	for _, r := range s.rules {
		if r.matches(text) {
			names = append(names, r.Name)
		}
	}
	return names
}

// Select returns the JSON array of single-key objects for every matching
// rule, in rule order. With no match it falls back to the persona summary
// so the model always has some grounding.
func (s *Selector) Select(message string, doc *profile.Document) (string, error) {
	text := strings.ToLower(message)

	var sections []map[string]any
	for _, r := range s.rules {
		if !r.matches(text) {
			continue
		}
		for _, f := range r.Fields {
			v, ok := doc.Section(f.Name)
			if f.OmitEmpty {
				if !ok || isEmpty(v) {
					continue
				}
			} else if !ok {
				v = f.Default
			}
			sections = append(sections, map[string]any{f.Name: v})
		}
	}

	if len(sections) == 0 {
		sections = append(sections, map[string]any{"persona": personaSummary(doc)})
	}
	return encode(sections)
}

// Select runs the default rule table.
func Select(message string, doc *profile.Document) (string, error) {
	return New().Select(message, doc)
}

func (r Rule) matches(lowered string) bool {
	for _, k := range r.Keywords {
		if strings.Contains(lowered, k) {
			return true
		}
	}
	return false
}

type persona struct {
	FullName any `json:"full_name"`
	Headline any `json:"headline"`
	Summary  any `json:"summary"`
}

func personaSummary(doc *profile.Document) persona {
	get := func(key string) any {
		v, _ := doc.Lookup("persona", key)
		return v
	}
	return persona{
		FullName: get("full_name"),
		Headline: get("headline"),
		Summary:  get("summary"),
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case int:
		return t == 0
	case float64:
		return t == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encoding context: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
