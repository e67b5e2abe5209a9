package ai

import (
	"context"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

type (
	CourseContentInput struct {
		Title       string `json:"title" validate:"required,notblank,max=200"`
		Description string `json:"description" validate:"max=5000"`
		Level       string `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
		ModuleCount int    `json:"moduleCount" validate:"omitempty,min=1,max=12"`
	}

	GeneratedLesson struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}

	GeneratedModule struct {
		Title   string            `json:"title"`
		Lessons []GeneratedLesson `json:"lessons"`
	}

	CourseContent struct {
		Description string            `json:"description"`
		Tags        []string          `json:"tags"`
		Modules     []GeneratedModule `json:"modules"`
	}

	ChatInput struct {
		Message string `json:"message" validate:"required,notblank,max=4000"`
		Context string `json:"context" validate:"max=4000"` // eg. the lesson being studied
		History []Turn `json:"history" validate:"max=50"`
	}

	ChatReply struct {
		Reply       string   `json:"reply"`
		Suggestions []string `json:"suggestions"`
	}

	InterviewInput struct {
		Role    string `json:"role" validate:"required,notblank,max=200"`
		Topic   string `json:"topic" validate:"max=200"`
		Message string `json:"message" validate:"max=4000"`
		History []Turn `json:"history" validate:"max=50"`
	}

	InterviewReply struct {
		Reply    string `json:"reply"`
		Question string `json:"question"`
		Feedback string `json:"feedback"`
	}

	// ActionSpec describes an action the assistant may ask for.
	ActionSpec struct {
		Name        string
		Description string
		Params      []string
	}

	SnapshotCourse struct {
		ID     string
		Title  string
		Status string
	}

	// Snapshot is a summary of the store given to the model so it can refer to existing data.
	Snapshot struct {
		Courses []SnapshotCourse
		Counts  map[string]int
	}

	AssistInput struct {
		Transcript string
		History    []Turn
		Snapshot   Snapshot
		Actions    []ActionSpec
	}

	Intent struct {
		Action               string                 `json:"action"`
		Params               map[string]interface{} `json:"params"`
		RequiresConfirmation bool                   `json:"requiresConfirmation"`
		Reply                string                 `json:"reply"`
		Confidence           float64                `json:"confidence"`
	}
)

// ActionNone is the intent of a transcript that needs no action.
const ActionNone = "none"

var (
	courseContentSchema = object([]string{"description", "tags", "modules"}, map[string]*Schema{
		"description": str("short course description"),
		"tags":        arrayOf(str(""), "lowercase tags"),
		"modules": arrayOf(object([]string{"title", "lessons"}, map[string]*Schema{
			"title": str("module title"),
			"lessons": arrayOf(object([]string{"title", "content"}, map[string]*Schema{
				"title":   str("lesson title"),
				"content": str("lesson content in Markdown"),
			}), ""),
		}), ""),
	})

	chatSchema = object([]string{"reply"}, map[string]*Schema{
		"reply":       str("answer to the student"),
		"suggestions": arrayOf(str(""), "follow-up questions"),
	})

	interviewSchema = object([]string{"reply", "question"}, map[string]*Schema{
		"reply":    str("what the interviewer says"),
		"question": str("the next interview question"),
		"feedback": str("feedback on the last answer, empty for the first question"),
	})

	intentSchema = object([]string{"action", "reply", "requiresConfirmation", "confidence"}, map[string]*Schema{
		"action":               str("name of the action, or none"),
		"params":               {Type: TypeObject, Description: "action parameters"},
		"requiresConfirmation": {Type: TypeBoolean},
		"reply":                str("short spoken reply"),
		"confidence":           {Type: TypeNumber, Description: "0 to 1"},
	})
)

// Flows runs the prompt templates against a Generator.
type Flows struct {
	gen      Generator
	validate *validator.Validate
}

func NewFlows(gen Generator, validate *validator.Validate) *Flows {
	return &Flows{gen: gen, validate: validate}
}

// generate calls the model and decodes its JSON answer into out.
func (f *Flows) generate(ctx context.Context, req Request, out interface{}) error {
	resp, err := f.gen.Generate(ctx, req)
	if err != nil {
		return errors.Wrap(err, "calling model")
	}
	text := stripFences(resp.Text)
	if text == "" {
		return ErrEmptyResponse
	}
	return errors.Wrap(sonic.ConfigStd.UnmarshalFromString(text, out), "decoding model response")
}

// stripFences removes the Markdown code fences models sometimes wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func (f *Flows) GenerateCourseContent(ctx context.Context, in CourseContentInput) (CourseContent, error) {
	if err := f.validate.Struct(in); err != nil {
		return CourseContent{}, err
	}
	if in.ModuleCount == 0 {
		in.ModuleCount = 4
	}
	prompt, err := render(courseContentTmpl, in)
	if err != nil {
		return CourseContent{}, err
	}
	var out CourseContent
	err = f.generate(ctx, Request{System: courseContentSystem, Prompt: prompt, Schema: courseContentSchema}, &out)
	return out, err
}

func (f *Flows) Coach(ctx context.Context, in ChatInput) (ChatReply, error) {
	if err := f.validate.Struct(in); err != nil {
		return ChatReply{}, err
	}
	prompt, err := render(coachTmpl, in)
	if err != nil {
		return ChatReply{}, err
	}
	var out ChatReply
	err = f.generate(ctx, Request{System: coachSystem, Prompt: prompt, History: in.History, Schema: chatSchema}, &out)
	return out, err
}

func (f *Flows) InterviewPrep(ctx context.Context, in InterviewInput) (InterviewReply, error) {
	if err := f.validate.Struct(in); err != nil {
		return InterviewReply{}, err
	}
	prompt, err := render(interviewTmpl, in)
	if err != nil {
		return InterviewReply{}, err
	}
	var out InterviewReply
	err = f.generate(ctx, Request{System: interviewSystem, Prompt: prompt, History: in.History, Schema: interviewSchema}, &out)
	return out, err
}

// AdminAssist turns an administrator's request into an Intent.
func (f *Flows) AdminAssist(ctx context.Context, in AssistInput) (Intent, error) {
	system, err := render(assistSystemTmpl, in)
	if err != nil {
		return Intent{}, err
	}
	prompt, err := render(assistTmpl, in)
	if err != nil {
		return Intent{}, err
	}
	var out Intent
	if err := f.generate(ctx, Request{System: system, Prompt: prompt, History: in.History, Schema: intentSchema}, &out); err != nil {
		return Intent{}, err
	}
	out.Action = strings.ToLower(strings.TrimSpace(out.Action))
	if out.Action == "" {
		out.Action = ActionNone
	}
	if out.Params == nil {
		out.Params = map[string]interface{}{}
	}
	return out, nil
}

type Speech struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// TextToSpeech synthesizes text with the given prebuilt voice and returns a WAV file.
func (f *Flows) TextToSpeech(ctx context.Context, text, voice string) (Speech, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Speech{}, errors.New("nothing to say")
	}
	resp, err := f.gen.Generate(ctx, Request{Prompt: text, Speech: &SpeechConfig{Voice: voice}})
	if err != nil {
		return Speech{}, errors.Wrap(err, "calling model")
	}
	if len(resp.Audio) == 0 {
		return Speech{}, ErrEmptyResponse
	}
	if strings.HasPrefix(resp.AudioMIME, "audio/wav") {
		return Speech{MimeType: "audio/wav", Data: resp.Audio}, nil
	}
	return Speech{MimeType: "audio/wav", Data: PCMToWAV(resp.Audio, sampleRate(resp.AudioMIME), 1, 16)}, nil
}
