// Package guard holds the pattern checks that run before any model call:
// crisis detection and the pre-call request guard.
package guard

import (
	"regexp"

	"github.com/kalambet/personabot/internal/profile"
)

// Rule blocks messages matching Pattern with the profile refusal of kind
// Refusal. Text matching Exempt is removed before Pattern is tried.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Exempt  *regexp.Regexp
	Refusal string
}

// matches reports whether the rule fires for message.
func (r Rule) matches(message string) bool {
	if r.Exempt != nil {
		message = r.Exempt.ReplaceAllString(message, " ")
	}
	return r.Pattern.MatchString(message)
}

// techNames are framework names that look like file names. Asking whether
// the persona knows node.js is a profile question, not a code request.
var techNames = regexp.MustCompile(`(?i)\b(node|vue|next|nuxt|react|express|angular|ember|backbone|three|d3|chart|svelte|alpine|moment|p5|nest|deno|ext)\.js\b`)

// DefaultRules are checked in order; the first match wins.
var DefaultRules = []Rule{
	{
		Name: "code_request",
		Pattern: regexp.MustCompile(`(?i)(` +
			`\b(debug(ging)?|fix(ing)?|optimi[sz]e|refactor(ing)?|patch|trace|stack ?trace|errors?|exceptions?)\b|` +
			`\b(npm|yarn|pnpm)\s+(install|i|add)\b|` +
			`\bpip3?\s+install\b|` +
			`\bdocker\s+(build|run|compose)\b|` +
			`\bgit\s+clone\b|` +
			`\bgradle\b|` +
			`\b(maven|mvn)\b|` +
			`\bdotnet\s+build\b|` +
			"```|" +
			`(^|[\w\s"'(/])\.(py|js|ts|tsx|jsx|java|go|rs|rb|php|cpp|cs|kt|swift|sh)\b` +
			`)`),
		Exempt:  techNames,
		Refusal: profile.RefusalCodeHelp,
	},
	{
		Name:    "out_of_scope",
		Pattern: regexp.MustCompile(`(?i)\b(build|fix|debug|implement|deploy|connect|integrate|code|program|script|refactor)\b`),
		Refusal: profile.RefusalCapabilityOutside,
	},
}

// Verdict is the outcome of Guard.Check.
type Verdict struct {
	Blocked bool
	Rule    string
	Refusal string
	Message string
}

// Guard is the pre-call request filter. A disabled guard passes every
// message and leaves policy decisions to the post-call judge.
type Guard struct {
	enabled bool
	rules   []Rule
	policy  profile.Policy
}

// New creates a Guard with DefaultRules.
func New(policy profile.Policy, enabled bool) *Guard {
	return NewWithRules(policy, enabled, DefaultRules)
}

// NewWithRules creates a Guard with a custom rule table.
func NewWithRules(policy profile.Policy, enabled bool, rules []Rule) *Guard {
	return &Guard{enabled: enabled, rules: rules, policy: policy}
}

// Enabled reports whether the guard stage is active.
func (g *Guard) Enabled() bool { return g.enabled }

// Check returns the first matching rule's refusal, or a pass.
func (g *Guard) Check(message string) Verdict {
	if !g.enabled {
		return Verdict{}
	}
	for _, r := range g.rules {
		if r.matches(message) {
			return Verdict{
				Blocked: true,
				Rule:    r.Name,
				Refusal: r.Refusal,
				Message: g.policy.Refusal(r.Refusal),
			}
		}
	}
	return Verdict{}
}
