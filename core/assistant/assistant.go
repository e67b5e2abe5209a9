// Package assistant is Elara, the voice assistant of the admin pages.
// A transcript is resolved by keyword rules first, then by the model; the resulting
// action runs through the Actions table, destructive ones only after a confirmation.
package assistant

import (
	"context"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/ai"
	"github.com/codexlms/codex/core/billing"
	"github.com/codexlms/codex/core/user"
)

var ErrEmptyTranscript = errors.New("empty transcript")

// Replies
const (
	replyAwake         = "Yes? How can I help?"
	replyNotUnderstood = "Sorry, I didn't catch that. Could you say it again?"
	replyNothingToDo   = "There is nothing waiting for a confirmation."
	replyAdminOnly     = "Sorry, only admins can ask me to change data."
	replyUnknown       = "Sorry, I can't do that yet."
	replyConfirm       = "Should I go ahead?"
)

type (
	// Outcome is the answer of the assistant to one transcript.
	Outcome struct {
		Reply               string         `json:"reply"`
		Speech              []string       `json:"speech"` // Reply split in sentences, for text-to-speech
		Resolution          Resolution     `json:"resolution"`
		Result              *Result        `json:"result,omitempty"`
		Navigate            string         `json:"navigate,omitempty"`
		PendingConfirmation *PendingAction `json:"pendingConfirmation,omitempty"`
		Ignored             bool           `json:"ignored,omitempty"` // waiting for the wake word
	}

	// UsageCounter meters the model calls of a user.
	UsageCounter interface {
		IncrementUsage(ctx context.Context, userID, feature string) (billing.Subscription, error)
	}

	// Snapshotter summarizes the store for the model.
	Snapshotter interface {
		Snapshot(ctx context.Context) (ai.Snapshot, error)
	}
)

type Assistant struct {
	sessions        *SessionStore
	resolver        *Resolver
	actions         Actions
	snapshots       Snapshotter
	usage           UsageCounter
	logger          core.Logger
	requireWakeWord bool
}

func New(
	conf *core.Config,
	sessions *SessionStore,
	resolver *Resolver,
	actions Actions,
	snapshots Snapshotter,
	usage UsageCounter,
	logger core.Logger,
) *Assistant {
	return &Assistant{
		sessions:        sessions,
		resolver:        resolver,
		actions:         actions,
		snapshots:       snapshots,
		usage:           usage,
		logger:          logger,
		requireWakeWord: conf.Assistant.RequireWakeWord,
	}
}

// Handle resolves the transcript of the caller and executes what it asks for.
func (a *Assistant) Handle(ctx context.Context, caller user.User, transcript string) (Outcome, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return Outcome{}, ErrEmptyTranscript
	}

	sess, err := a.sessions.Load(ctx, caller.ID)
	if err != nil {
		return Outcome{}, err
	}
	sess.AutoExecute = caller.Settings.AssistantAutoExecute

	text, woke := stripWakeWord(transcript)
	if woke {
		sess.Awake = true
		if text == "" {
			rule := Rule{Name: "wake", Kind: RuleWake}
			out := Outcome{Reply: replyAwake, Resolution: Resolution{Kind: RuleMatch, Rule: &rule}}
			return a.finish(ctx, &sess, transcript, out)
		}
	} else if a.requireWakeWord && !sess.Awake {
		return Outcome{Ignored: true, Resolution: Resolution{Kind: Unresolved}}, nil
	}

	res, err := a.resolver.Resolve(ctx, text, sess, func() (ai.AssistInput, error) {
		if _, err := a.usage.IncrementUsage(ctx, caller.ID, billing.FeatureAssistant); err != nil {
			return ai.AssistInput{}, err
		}
		snap, err := a.snapshots.Snapshot(ctx)
		if err != nil {
			return ai.AssistInput{}, err
		}
		return ai.AssistInput{Snapshot: snap, Actions: a.actions.Specs()}, nil
	})
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Resolution: res}
	switch res.Kind {
	case RuleMatch:
		a.applyRule(ctx, caller, &sess, *res.Rule, &out)
	case ModelIntent:
		a.applyIntent(ctx, caller, &sess, *res.Intent, &out)
	default:
		out.Reply = replyNotUnderstood
	}
	return a.finish(ctx, &sess, text, out)
}

func (a *Assistant) finish(ctx context.Context, sess *Session, said string, out Outcome) (Outcome, error) {
	max := a.sessions.historySize
	sess.Append(ai.RoleUser, said, max)
	sess.Append(ai.RoleModel, out.Reply, max)
	if err := a.sessions.Save(ctx, *sess); err != nil {
		return Outcome{}, err
	}
	out.PendingConfirmation = sess.Pending
	out.Speech = SplitSentences(out.Reply)
	return out, nil
}

func (a *Assistant) applyRule(ctx context.Context, caller user.User, sess *Session, rule Rule, out *Outcome) {
	switch rule.Kind {
	case RuleConfirm:
		pending := sess.Pending
		sess.Pending = nil
		if pending == nil {
			out.Reply = replyNothingToDo
			return
		}
		a.execute(ctx, caller, pending.Action, pending.Params, "", out)
	case RuleCancel:
		sess.Pending = nil
		out.Reply = rule.Reply
	case RuleNavigate:
		out.Navigate = rule.Target
		out.Reply = rule.Reply
	default:
		out.Reply = rule.Reply
	}
}

func (a *Assistant) applyIntent(ctx context.Context, caller user.User, sess *Session, intent ai.Intent, out *Outcome) {
	if intent.Action == "" || intent.Action == ai.ActionNone {
		out.Reply = intent.Reply
		if out.Reply == "" {
			out.Reply = replyNotUnderstood
		}
		return
	}

	act, ok := a.actions[intent.Action]
	if !ok {
		out.Reply = joinReplies(intent.Reply, replyUnknown)
		return
	}
	if act.Mutating && !caller.IsAdmin() {
		out.Reply = replyAdminOnly
		return
	}
	if (act.Destructive || intent.RequiresConfirmation) && !sess.AutoExecute {
		sess.Pending = &PendingAction{
			Action:    intent.Action,
			Params:    intent.Params,
			Reply:     intent.Reply,
			CreatedAt: core.NowFunc(),
		}
		out.Reply = joinReplies(intent.Reply, replyConfirm)
		return
	}
	a.execute(ctx, caller, intent.Action, intent.Params, intent.Reply, out)
}

// execute runs an action and appends its summary to the reply.
// Action failures are reported to the user, not returned.
func (a *Assistant) execute(ctx context.Context, caller user.User, name string, params map[string]interface{}, reply string, out *Outcome) {
	act, ok := a.actions[name]
	if !ok {
		out.Reply = joinReplies(reply, replyUnknown)
		return
	}
	if act.Mutating && !caller.IsAdmin() {
		out.Reply = replyAdminOnly
		return
	}

	result, err := act.Run(ctx, caller, Params(params))
	if err != nil {
		a.logger.Error(err.Error(), err, caller, map[string]interface{}{"action": name})
		out.Reply = joinReplies(reply, result.Summary, "I couldn't do that: "+describeError(err)+".")
		if result.Summary != "" {
			out.Result = &result
		}
		return
	}
	out.Result = &result
	out.Navigate = result.Navigate
	out.Reply = joinReplies(reply, result.Summary)
}

func describeError(err error) string {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	return errors.Cause(err).Error()
}

func joinReplies(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// SplitSentences cuts text after each '.', '!' or '?' followed by a space.
func SplitSentences(text string) []string {
	sentences := make([]string, 0)
	runes := []rune(strings.TrimSpace(text))
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
