// Package judge classifies a (user message, draft reply) pair against the
// persona's policy with a second, smaller model call.
package judge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/personabot/internal/profile"
)

// Decision is a governance decision code.
type Decision string

const (
	Allow             Decision = "ALLOW"
	OutOfScope        Decision = "OUT_OF_SCOPE"
	ProgrammingHelp   Decision = "PROGRAMMING_HELP"
	UnknownCapability Decision = "UNKNOWN_CAPABILITY"
	UnknownPreference Decision = "UNKNOWN_PREFERENCE"
	OffTopic          Decision = "OFF_TOPIC"
	Error             Decision = "ERROR"
	Crisis            Decision = "CRISIS"

	// Refuse is the blocked state for judge output that could not be read.
	Refuse Decision = "REFUSE"
)

// Releases reports whether the draft is sent verbatim. ERROR fails open.
func (d Decision) Releases() bool {
	return d == Allow || d == Error
}

// Verdict is the judge's classification.
type Verdict struct {
	Decision     Decision `json:"decision"`
	Reason       string   `json:"reason"`
	Missing      []string `json:"missing"`
	SuggestReply string   `json:"suggest_reply"`
}

// Outcome tags how a Verdict was obtained.
type Outcome int

const (
	// Parsed: a structured object was decoded.
	Parsed Outcome = iota
	// FellBack: decoding failed and the "ALLOW" token heuristic matched.
	FellBack
	// Unparsable: decoding failed and the output is treated as blocked.
	Unparsable
	// CallFailed: the judge model could not be reached.
	CallFailed
	// Skipped: judging is disabled.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Parsed:
		return "parsed"
	case FellBack:
		return "fell_back"
	case Unparsable:
		return "unparsable"
	case CallFailed:
		return "call_failed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ParseResult is a Verdict together with how it was parsed.
type ParseResult struct {
	Verdict Verdict
	Outcome Outcome
}

// ParseVerdict reads raw judge output. The first balanced {...} block is
// decoded, or the whole text when there is none. When decoding fails the
// output resolves to ALLOW if it contains the token "ALLOW" (unless strict)
// and to REFUSE with the raw text as reason otherwise.
func ParseVerdict(raw string, strict bool) ParseResult {
	raw = strings.TrimSpace(raw)

	candidate := raw
	if block, ok := firstObject(raw); ok {
		candidate = block
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err == nil && obj != nil {
		return ParseResult{Verdict: fromObject(obj), Outcome: Parsed}
	}

	if !strict && strings.Contains(strings.ToUpper(raw), string(Allow)) {
		return ParseResult{Verdict: Verdict{Decision: Allow, Reason: raw}, Outcome: FellBack}
	}
	return ParseResult{Verdict: Verdict{Decision: Refuse, Reason: raw}, Outcome: Unparsable}
}

// judgeDecisions are the codes the judge may return. ERROR and CRISIS are
// assigned by the pipeline only.
var judgeDecisions = map[Decision]bool{
	Allow:             true,
	OutOfScope:        true,
	ProgrammingHelp:   true,
	UnknownCapability: true,
	UnknownPreference: true,
	OffTopic:          true,
}

func fromObject(obj map[string]any) Verdict {
	v := Verdict{Decision: Allow}
	v.Reason = scalarString(obj["reason"])
	if d, ok := obj["decision"]; ok && d != nil {
		if s := strings.ToUpper(strings.TrimSpace(scalarString(d))); s != "" {
			v.Decision = Decision(s)
		}
	}
	if !judgeDecisions[v.Decision] {
		reason := fmt.Sprintf("unrecognized decision %q", string(v.Decision))
		if v.Reason != "" {
			reason += ": " + v.Reason
		}
		v.Decision, v.Reason = Refuse, reason
	}
	v.SuggestReply = strings.TrimSpace(scalarString(obj["suggest_reply"]))
	if items, ok := obj["missing"].([]any); ok {
		for _, item := range items {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				v.Missing = append(v.Missing, strings.TrimSpace(s))
			}
		}
	}
	return v
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// firstObject returns the first balanced {...} block in s. Braces inside
// JSON strings are ignored.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// FillSuggestion supplies the policy default reply when the judge blocked
// the draft without suggesting one.
func FillSuggestion(v Verdict, policy profile.Policy) Verdict {
	if v.SuggestReply != "" {
		return v
	}
	switch v.Decision {
	case UnknownCapability:
		if len(v.Missing) > 0 {
			v.SuggestReply = "I don’t have that in my profile: " + strings.Join(v.Missing, ", ") + "."
		} else {
			v.SuggestReply = policy.Refusal(profile.RefusalUnknownCapability)
		}
	case UnknownPreference:
		if len(v.Missing) > 0 {
			v.SuggestReply = "I don’t have info on that preference in my profile: " + strings.Join(v.Missing, ", ") + "."
		} else {
			v.SuggestReply = policy.Refusal(profile.RefusalUnknownPreference)
		}
	case OutOfScope:
		v.SuggestReply = policy.Refusal(profile.RefusalCapabilityOutside)
	case ProgrammingHelp:
		v.SuggestReply = policy.Refusal(profile.RefusalCodeHelp)
	}
	return v
}
