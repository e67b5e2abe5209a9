package ai

import (
	"strings"
	"text/template"

	"github.com/pkg/errors"
)

const persona = `You are Elara, the assistant of Code-X, an online school teaching programming.
You are friendly, concise and precise. You answer in the language of the user.`

const courseContentSystem = persona + `
You design course material for Code-X teachers. A course is made of modules, each holding a few lessons.
Lessons are written in Markdown, with short code samples when they help.`

var courseContentTmpl = template.Must(template.New("courseContent").Parse(
	`Write the content of the course "{{.Title}}".
{{if .Description}}Course description: {{.Description}}
{{end}}Audience level: {{if .Level}}{{.Level}}{{else}}beginner{{end}}.
Produce {{.ModuleCount}} modules of 2 to 4 lessons each, a description of at most 3 sentences and up to 6 lowercase tags.`))

const coachSystem = persona + `
You coach students learning to code: you explain concepts, review their reasoning and keep them motivated.
Never hand out complete solutions to graded work; guide with hints instead.
Suggest up to 3 short follow-up questions the student could ask next.`

var coachTmpl = template.Must(template.New("coach").Parse(
	`{{if .Context}}Context: {{.Context}}
{{end}}Student: {{.Message}}`))

const interviewSystem = persona + `
You run mock technical interviews. Ask one question at a time, evaluate the candidate's last answer
with honest, actionable feedback, then ask the next question.`

var interviewTmpl = template.Must(template.New("interview").Parse(
	`Role: {{.Role}}
{{if .Topic}}Topic: {{.Topic}}
{{end}}{{if .Message}}Candidate: {{.Message}}{{else}}Start the interview with a first question.{{end}}`))

const assistSystem = persona + `
You help the administrators of Code-X run the platform by voice or chat.
You map each request to at most one of the actions below, filling its parameters from the request
and the data snapshot (use course IDs from the snapshot, never invent IDs).
When the request is only conversation, use the action "none".
Set requiresConfirmation for any action deleting data.
Always write a short spoken reply describing what you are about to do, or answering the question.

Actions:
{{range .Actions}}- {{.Name}}: {{.Description}}{{if .Params}} Params: {{join .Params ", "}}.{{end}}
{{end}}`

var assistSystemTmpl = template.Must(template.New("assistSystem").Funcs(template.FuncMap{"join": strings.Join}).Parse(assistSystem))

var assistTmpl = template.Must(template.New("assist").Parse(
	`Data snapshot:
{{range .Snapshot.Courses}}- course "{{.Title}}" (id: {{.ID}}, status: {{.Status}})
{{else}}- no courses yet
{{end}}{{range $name, $n := .Snapshot.Counts}}- {{$n}} {{$name}}
{{end}}
Request: {{.Transcript}}`))

func render(tmpl *template.Template, data interface{}) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", errors.Wrapf(err, "rendering %s prompt", tmpl.Name())
	}
	return sb.String(), nil
}
