package guard

import (
	"regexp"
	"testing"

	"github.com/kalambet/personabot/internal/profile"
)

func TestDetectCrisis(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"I want to kill myself", true},
		{"i've been thinking about SUICIDE", true},
		{"feeling suicidal lately", true},
		{"I keep self-harming", true},
		{"thinking of self harm", true},
		{"I want to end my life", true},
		{"I just want to die", true},
		{"I might hurt myself", true},
		{"I want to unalive", true},
		{"I could take my own life", true},
		{"what's your favorite food?", false},
		{"that project killed my weekend", false},
		{"does it hurt your feelings", false},
	}
	for _, tt := range tests {
		if got := DetectCrisis(tt.message); got != tt.want {
			t.Errorf("DetectCrisis(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}

func TestGuard_CodeRequests(t *testing.T) {
	g := New(profile.Policy{}, true)
	code := profile.Policy{}.Refusal(profile.RefusalCodeHelp)

	blocked := []string{
		"fix this docker build error",
		"can you debug my function",
		"I get an exception when I run it",
		"npm install keeps failing",
		"pip install requests hangs",
		"how do I git clone a repo",
		"run mvn package for me",
		"dotnet build throws warnings",
		"what does this do?\n```\nprint(1)\n```",
		"look at main.go please",
		"why does app.tsx re-render",
		"what's wrong with my .py file",
		"this .go file won't compile",
		"a .rs file",
		".sh scripts confuse me",
		"open 'handler.rb' and tell me",
		"my node.js server.js crashes",
	}
	for _, msg := range blocked {
		v := g.Check(msg)
		if !v.Blocked || v.Rule != "code_request" {
			t.Errorf("Check(%q) = %+v, want code_request block", msg, v)
			continue
		}
		if v.Message != code {
			t.Errorf("Check(%q).Message = %q, want %q", msg, v.Message, code)
		}
	}
}

func TestGuard_OutOfScope(t *testing.T) {
	policy := profile.Policy{RefusalMessages: map[string]string{
		profile.RefusalCapabilityOutside: "Not something I do.",
	}}
	g := New(policy, true)

	for _, msg := range []string{"build me a website", "can you deploy my app", "integrate with slack"} {
		v := g.Check(msg)
		if !v.Blocked || v.Rule != "out_of_scope" {
			t.Errorf("Check(%q) = %+v, want out_of_scope block", msg, v)
			continue
		}
		if v.Message != "Not something I do." {
			t.Errorf("Check(%q).Message = %q", msg, v.Message)
		}
	}
}

func TestGuard_Passes(t *testing.T) {
	g := New(profile.Policy{}, true)
	for _, msg := range []string{"tell me about your WGU degree", "what's your favorite food?", "what do you do for fun"} {
		if v := g.Check(msg); v.Blocked || v.Message != "" {
			t.Errorf("Check(%q) = %+v, want pass", msg, v)
		}
	}
}

func TestGuard_Disabled(t *testing.T) {
	g := New(profile.Policy{}, false)
	if g.Enabled() {
		t.Fatal("Enabled() = true, want false")
	}
	if v := g.Check("fix this docker build error"); v.Blocked {
		t.Errorf("disabled guard blocked: %+v", v)
	}
}

func TestGuard_CustomRules(t *testing.T) {
	g := NewWithRules(profile.Policy{}, true, []Rule{
		{Name: "weather", Pattern: regexp.MustCompile(`(?i)\bweather\b`), Refusal: profile.RefusalCapabilityOutside},
	})
	if v := g.Check("What's the weather like?"); !v.Blocked || v.Rule != "weather" {
		t.Errorf("Check = %+v, want weather block", v)
	}
	if v := g.Check("fix my code"); v.Blocked {
		t.Errorf("custom table should not include default rules: %+v", v)
	}
}

func TestGuard_FrameworkNamesPass(t *testing.T) {
	g := New(profile.Policy{}, true)

	for _, msg := range []string{
		"Do you know node.js?",
		"have you used Vue.js or Next.js",
		"what do you think of three.js",
		"ready...go!",
	} {
		if v := g.Check(msg); v.Blocked {
			t.Errorf("Check(%q) = %+v, want pass", msg, v)
		}
	}
}
