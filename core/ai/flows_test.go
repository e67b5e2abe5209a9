package ai

import (
	"context"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexlms/codex/core"
)

func newTestFlows() (*Flows, *GeneratorMock) {
	validate, _ := core.NewValidator()
	gen := NewGeneratorMock()
	return NewFlows(gen, validate), gen
}

func TestFlows_GenerateCourseContent(t *testing.T) {
	flows, gen := newTestFlows()
	ctx := context.Background()

	_, err := flows.GenerateCourseContent(ctx, CourseContentInput{})
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Empty(t, gen.Requests())

	gen.Reply("```json\n" + `{"description":"Learn Go.","tags":["go"],"modules":[{"title":"Basics","lessons":[{"title":"Hello","content":"# Hello"}]}]}` + "\n```")
	out, err := flows.GenerateCourseContent(ctx, CourseContentInput{Title: "Go", Description: "Go for beginners"})
	require.NoError(t, err)
	assert.Equal(t, "Learn Go.", out.Description)
	require.Len(t, out.Modules, 1)
	assert.Equal(t, "# Hello", out.Modules[0].Lessons[0].Content)

	req := gen.Requests()[0]
	assert.Equal(t, courseContentSchema, req.Schema)
	assert.Contains(t, req.Prompt, `"Go"`)
	assert.Contains(t, req.Prompt, "Produce 4 modules")
	assert.Contains(t, req.Prompt, "Audience level: beginner")
}

func TestFlows_Errors(t *testing.T) {
	flows, gen := newTestFlows()
	ctx := context.Background()

	gen.Err = errors.New("quota exceeded")
	_, err := flows.Coach(ctx, ChatInput{Message: "What is a slice?"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	gen.Err = nil
	_, err = flows.Coach(ctx, ChatInput{Message: "What is a slice?"})
	assert.Equal(t, ErrEmptyResponse, err)

	gen.Reply("not json")
	_, err = flows.Coach(ctx, ChatInput{Message: "What is a slice?"})
	assert.Error(t, err)
}

func TestFlows_Chats(t *testing.T) {
	flows, gen := newTestFlows()
	ctx := context.Background()
	history := []Turn{{Role: RoleUser, Text: "hi"}, {Role: RoleModel, Text: "hello"}}

	gen.Reply(ChatReply{Reply: "A slice is a view on an array.", Suggestions: []string{"What is cap?"}})
	reply, err := flows.Coach(ctx, ChatInput{Message: "What is a slice?", Context: "Lesson: slices", History: history})
	require.NoError(t, err)
	assert.Equal(t, "A slice is a view on an array.", reply.Reply)

	gen.Reply(InterviewReply{Reply: "Welcome.", Question: "What is a goroutine?"})
	ir, err := flows.InterviewPrep(ctx, InterviewInput{Role: "Backend developer", Topic: "Go"})
	require.NoError(t, err)
	assert.Equal(t, "What is a goroutine?", ir.Question)

	reqs := gen.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, history, reqs[0].History)
	assert.Contains(t, reqs[0].Prompt, "Context: Lesson: slices")
	assert.Contains(t, reqs[1].Prompt, "Start the interview")
}

func TestFlows_AdminAssist(t *testing.T) {
	flows, gen := newTestFlows()
	ctx := context.Background()

	gen.Reply(`{"action":" Delete_Course ","params":{"courseId":"c1"},"requiresConfirmation":true,"reply":"Deleting Go.","confidence":0.9}`)
	intent, err := flows.AdminAssist(ctx, AssistInput{
		Transcript: "delete the go course",
		Snapshot:   Snapshot{Courses: []SnapshotCourse{{ID: "c1", Title: "Go", Status: "draft"}}, Counts: map[string]int{"users": 3}},
		Actions:    []ActionSpec{{Name: "delete_course", Description: "Deletes a course.", Params: []string{"courseId"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "delete_course", intent.Action)
	assert.Equal(t, "c1", intent.Params["courseId"])
	assert.True(t, intent.RequiresConfirmation)

	req := gen.Requests()[0]
	assert.Contains(t, req.System, "- delete_course: Deletes a course. Params: courseId.")
	assert.Contains(t, req.Prompt, `course "Go" (id: c1, status: draft)`)
	assert.Contains(t, req.Prompt, "- 3 users")
	assert.True(t, strings.HasSuffix(req.Prompt, "Request: delete the go course"))

	gen.Reply(`{"reply":"Hello!"}`)
	intent, err = flows.AdminAssist(ctx, AssistInput{Transcript: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, ActionNone, intent.Action)
	assert.NotNil(t, intent.Params)
	assert.Contains(t, gen.Requests()[1].Prompt, "no courses yet")
}

func TestFlows_TextToSpeech(t *testing.T) {
	flows, gen := newTestFlows()
	ctx := context.Background()

	_, err := flows.TextToSpeech(ctx, "  ", "Kore")
	assert.Error(t, err)

	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	gen.ReplyAudio(pcm, "audio/L16;codec=pcm;rate=16000")
	speech, err := flows.TextToSpeech(ctx, "Hello there.", "Kore")
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", speech.MimeType)
	require.Len(t, speech.Data, 44+len(pcm))
	assert.Equal(t, "RIFF", string(speech.Data[:4]))
	assert.Equal(t, "WAVE", string(speech.Data[8:12]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(speech.Data[24:28]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(speech.Data[28:32]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(speech.Data[40:44]))
	assert.Equal(t, pcm, speech.Data[44:])

	req := gen.Requests()[0]
	require.NotNil(t, req.Speech)
	assert.Equal(t, "Kore", req.Speech.Voice)
}

func TestSampleRate(t *testing.T) {
	assert.Equal(t, 24000, sampleRate("audio/L16;codec=pcm"))
	assert.Equal(t, 44100, sampleRate("audio/L16; rate=44100"))
	assert.Equal(t, 24000, sampleRate("audio/L16;rate=abc"))
}
