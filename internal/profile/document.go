package profile

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Refusal kinds understood by Policy.Refusal.
const (
	RefusalUnknownCapability = "unknown_capability"
	RefusalUnknownPreference = "unknown_preference"
	RefusalCapabilityOutside = "capability_outside"
	RefusalCodeHelp          = "code_help"
)

var defaultRefusals = map[string]string{
	RefusalUnknownCapability: "I don’t have that in my profile.",
	RefusalUnknownPreference: "I don’t have info on that preference.",
	RefusalCapabilityOutside: "I can’t do that. I only answer based on the info in my profile.",
	RefusalCodeHelp:          "I don’t provide programming help or code fixes. I’m happy to talk about my background, projects, or preferences instead.",
}

// DefaultCrisisMessage is returned for crisis messages when the profile
// supplies none.
const DefaultCrisisMessage = "I'm really sorry you're feeling this way. You don't have to go through it alone. " +
	"If you are in immediate danger, call your local emergency number. In the US you can call or text 988 " +
	"to reach the Suicide & Crisis Lifeline, any time."

// Document is the persona profile: skills, experience, education,
// certifications, personal details, contact info, capabilities, refusal
// policy and crisis text. It is loaded once and never mutated afterwards,
// so a single Document is safe to share between goroutines.
type Document struct {
	raw map[string]any
}

// Persona is the identity block used when nothing more specific applies.
type Persona struct {
	FullName string `json:"full_name"`
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	BotName  string `json:"bot_name,omitempty"`
}

// Policy holds the refusal messages configured in the profile.
type Policy struct {
	RefusalMessages map[string]string
}

// Refusal returns the configured message for kind, or the built-in default.
func (p Policy) Refusal(kind string) string {
	if msg := strings.TrimSpace(p.RefusalMessages[kind]); msg != "" {
		return msg
	}
	return defaultRefusals[kind]
}

// Empty returns a profile with no sections.
func Empty() *Document {
	return &Document{raw: map[string]any{}}
}

// New wraps an already decoded profile map.
func New(raw map[string]any) *Document {
	if raw == nil {
		return Empty()
	}
	return &Document{raw: raw}
}

// Parse decodes a YAML or JSON profile document.
func Parse(data []byte) (*Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	return New(raw), nil
}

// IsEmpty reports whether the profile has no sections at all.
func (d *Document) IsEmpty() bool {
	return d == nil || len(d.raw) == 0
}

// Section returns the top-level value stored under name.
func (d *Document) Section(name string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.raw[name]
	return v, ok
}

// Lookup walks nested maps along path.
func (d *Document) Lookup(path ...string) (any, bool) {
	if d == nil {
		return nil, false
	}
	var cur any = d.raw
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// MarshalJSON renders the whole profile.
func (d *Document) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d.raw)
}

// Capabilities returns the sorted, de-duplicated capability names.
func (d *Document) Capabilities() []string {
	v, _ := d.Section("capabilities")
	return uniqueSorted(Flatten(v), false)
}

// Policy returns the refusal policy of the profile.
func (d *Document) Policy() Policy {
	p := Policy{RefusalMessages: map[string]string{}}
	v, ok := d.Lookup("policy", "refusal_messages")
	if !ok {
		return p
	}
	m, ok := v.(map[string]any)
	if !ok {
		return p
	}
	for k, msg := range m {
		if s, ok := msg.(string); ok {
			p.RefusalMessages[k] = s
		}
	}
	return p
}

// Persona returns the persona identity block.
func (d *Document) Persona() Persona {
	return Persona{
		FullName: d.lookupString("persona", "full_name"),
		Headline: d.lookupString("persona", "headline"),
		Summary:  d.lookupString("persona", "summary"),
		BotName:  d.lookupString("persona", "bot_name"),
	}
}

// CrisisMessage returns suicide.message, suicide.text or the built-in fallback.
func (d *Document) CrisisMessage() string {
	for _, key := range []string{"message", "text"} {
		if s := strings.TrimSpace(d.lookupString("suicide", key)); s != "" {
			return s
		}
	}
	return DefaultCrisisMessage
}

func (d *Document) lookupString(path ...string) string {
	v, ok := d.Lookup(path...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Flatten collects every string leaf under v, depth first. Map values are
// visited in key order so the result is deterministic. Non-string leaves
// are skipped.
func Flatten(v any) []string {
	var out []string
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case []any:
			for _, e := range t {
				walk(e)
			}
		case []string:
			out = append(out, t...)
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(t[k])
			}
		}
	}
	walk(v)
	return out
}

func uniqueSorted(in []string, lower bool) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
