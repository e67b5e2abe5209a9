package assistant

import (
	"context"
	"strings"
	"unicode"

	"github.com/codexlms/codex/core/ai"
)

// Resolution kinds
const (
	RuleMatch   = "rule"
	ModelIntent = "model"
	Unresolved  = "unresolved"
)

// Rule kinds
const (
	RuleConfirm  = "confirm"
	RuleCancel   = "cancel"
	RuleWake     = "wake"
	RuleNavigate = "navigate"
	RuleGreet    = "greet"
	RuleHelp     = "help"
)

type (
	Rule struct {
		Name    string   `json:"name"`
		Kind    string   `json:"kind"`
		Phrases []string `json:"-"`
		Target  string   `json:"target,omitempty"` // page for navigation rules
		Reply   string   `json:"-"`

		// only considered while a confirmation is pending
		NeedsPending bool `json:"-"`
	}

	// Resolution is the outcome of resolving a transcript: a rule, a model intent, or nothing.
	Resolution struct {
		Kind   string     `json:"kind"`
		Rule   *Rule      `json:"rule,omitempty"`
		Intent *ai.Intent `json:"intent,omitempty"`
	}
)

var wakeWords = []string{"hey elara", "ok elara", "elara"}

// DefaultRules is the command table; the first matching rule wins.
var DefaultRules = []Rule{
	// negations come first: "no, don't do it" must never confirm
	{Name: "cancel", Kind: RuleCancel, NeedsPending: true, Phrases: []string{"no", "nope", "not", "cancel", "stop", "never mind", "don't", "dont", "wait", "hold on"}, Reply: "Okay, I cancelled it."},
	{Name: "confirm", Kind: RuleConfirm, NeedsPending: true, Phrases: []string{"yes", "yeah", "yep", "confirm", "do it", "go ahead", "sure"}},
	{Name: "dashboard", Kind: RuleNavigate, Target: "/admin", Phrases: []string{"go to dashboard", "open dashboard", "go to the dashboard", "open the dashboard", "go home"}, Reply: "Opening the dashboard."},
	{Name: "courses", Kind: RuleNavigate, Target: "/admin/courses", Phrases: []string{"go to courses", "open courses", "go to the courses", "open the courses"}, Reply: "Opening the courses."},
	{Name: "users", Kind: RuleNavigate, Target: "/admin/users", Phrases: []string{"go to users", "open users", "go to the users", "open the users"}, Reply: "Opening the users."},
	{Name: "assignments", Kind: RuleNavigate, Target: "/admin/assignments", Phrases: []string{"go to assignments", "open assignments"}, Reply: "Opening the assignments."},
	{Name: "exams", Kind: RuleNavigate, Target: "/admin/exams", Phrases: []string{"go to exams", "open exams"}, Reply: "Opening the exams."},
	{Name: "projects", Kind: RuleNavigate, Target: "/admin/projects", Phrases: []string{"go to projects", "open projects"}, Reply: "Opening the projects."},
	{Name: "messages", Kind: RuleNavigate, Target: "/admin/messages", Phrases: []string{"go to messages", "open messages", "open my messages"}, Reply: "Opening the messages."},
	{Name: "settings", Kind: RuleNavigate, Target: "/settings", Phrases: []string{"go to settings", "open settings"}, Reply: "Opening the settings."},
	{Name: "greeting", Kind: RuleGreet, Phrases: []string{"hello", "hi", "good morning", "good afternoon", "good evening"}, Reply: "Hello! How can I help you today?"},
	{Name: "thanks", Kind: RuleGreet, Phrases: []string{"thank you", "thanks"}, Reply: "You're welcome."},
	{Name: "help", Kind: RuleHelp, Phrases: []string{"help", "what can you do"}, Reply: "I can open pages, manage courses, coursework and messages, and answer questions about the platform. Try: create a course about Go."},
}

// normalize lowercases s, turns punctuation into spaces and pads it so that
// phrases only match whole words.
func normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return " " + strings.Join(strings.Fields(s), " ") + " "
}

func contains(normalized, phrase string) bool {
	return strings.Contains(normalized, " "+phrase+" ")
}

// stripWakeWord reports whether the transcript starts with (or is) a wake word and returns the rest.
func stripWakeWord(transcript string) (string, bool) {
	n := normalize(transcript)
	for _, w := range wakeWords {
		if strings.HasPrefix(n, " "+w+" ") {
			return strings.TrimSpace(n[len(w)+1:]), true
		}
	}
	return transcript, false
}

// AssistFlow turns a transcript into an intent.
type AssistFlow interface {
	AdminAssist(ctx context.Context, in ai.AssistInput) (ai.Intent, error)
}

// Resolver runs the rules first, then falls back on the model.
type Resolver struct {
	rules []Rule
	flow  AssistFlow
}

func NewResolver(rules []Rule, flow AssistFlow) *Resolver {
	return &Resolver{rules: rules, flow: flow}
}

// MatchRule returns the first rule matching the transcript.
func (r *Resolver) MatchRule(transcript string, pending bool) (Rule, bool) {
	n := normalize(transcript)
	for _, rule := range r.rules {
		if rule.NeedsPending && !pending {
			continue
		}
		for _, p := range rule.Phrases {
			if contains(n, p) {
				return rule, true
			}
		}
	}
	return Rule{}, false
}

// Resolve matches the transcript against the rules and asks the model otherwise.
// The model is only called when the rules fail; its errors are returned with an Unresolved resolution.
func (r *Resolver) Resolve(ctx context.Context, transcript string, sess Session, input func() (ai.AssistInput, error)) (Resolution, error) {
	if strings.TrimSpace(transcript) == "" {
		return Resolution{Kind: Unresolved}, nil
	}
	if rule, ok := r.MatchRule(transcript, sess.Pending != nil); ok {
		return Resolution{Kind: RuleMatch, Rule: &rule}, nil
	}
	if r.flow == nil {
		return Resolution{Kind: Unresolved}, nil
	}

	in, err := input()
	if err != nil {
		return Resolution{Kind: Unresolved}, err
	}
	in.Transcript = transcript
	in.History = sess.History
	intent, err := r.flow.AdminAssist(ctx, in)
	if err != nil {
		return Resolution{Kind: Unresolved}, err
	}
	return Resolution{Kind: ModelIntent, Intent: &intent}, nil
}
