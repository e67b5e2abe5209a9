package assistant

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/ai"
	"github.com/codexlms/codex/core/course"
	"github.com/codexlms/codex/core/coursework"
	"github.com/codexlms/codex/core/message"
	"github.com/codexlms/codex/core/user"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrMissingParam  = errors.New("missing parameter")
)

// Params are the arguments of an action, as decoded from the model's JSON.
type Params map[string]interface{}

func (p Params) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (p Params) Require(keys ...string) error {
	for _, k := range keys {
		if p.String(k) == "" {
			return errors.Wrap(ErrMissingParam, k)
		}
	}
	return nil
}

func (p Params) Bool(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func (p Params) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// Decode re-encodes the value at key into v, eg. a list of objects into a slice of structs.
func (p Params) Decode(key string, v interface{}) error {
	raw, ok := p[key]
	if !ok || raw == nil {
		return errors.Wrap(ErrMissingParam, key)
	}
	if s, ok := raw.(string); ok {
		return errors.Wrap(sonic.ConfigStd.UnmarshalFromString(s, v), "decoding "+key)
	}
	b, err := sonic.ConfigStd.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, "encoding "+key)
	}
	return errors.Wrap(sonic.ConfigStd.Unmarshal(b, v), "decoding "+key)
}

func (p Params) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return core.CleanStrings(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return core.CleanStrings(out)
	case string:
		return core.CleanStrings(strings.Split(v, ","))
	}
	return nil
}

type (
	// Result is what an executed action reports back.
	Result struct {
		Summary  string      `json:"summary"`
		Data     interface{} `json:"data,omitempty"`
		Navigate string      `json:"navigate,omitempty"`
	}

	Action struct {
		Spec        ai.ActionSpec
		Mutating    bool // admins only
		Destructive bool // needs a confirmation
		Run         func(ctx context.Context, caller user.User, p Params) (Result, error)
	}

	// Actions is the dispatch table of the assistant, keyed by action name.
	Actions map[string]Action
)

// Specs lists the actions sorted by name, for the model prompt.
func (a Actions) Specs() []ai.ActionSpec {
	specs := make([]ai.ActionSpec, 0, len(a))
	for _, act := range a {
		specs = append(specs, act.Spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Dependencies of the action table.
type ActionDeps struct {
	Courses    *course.Service
	Coursework *coursework.Service
	Messages   *message.Service
	Users      *user.Service
	Flows      *ai.Flows // optional; content generation is skipped without it
}

// pages the navigate action may open
var pages = map[string]string{
	"dashboard":     "/admin",
	"courses":       "/admin/courses",
	"users":         "/admin/users",
	"assignments":   "/admin/assignments",
	"exams":         "/admin/exams",
	"projects":      "/admin/projects",
	"messages":      "/admin/messages",
	"notifications": "/admin/notifications",
	"subscriptions": "/admin/subscriptions",
	"settings":      "/settings",
}

func NewActions(deps ActionDeps) Actions {
	actions := Actions{}
	add := func(a Action) { actions[a.Spec.Name] = a }

	add(Action{
		Spec: ai.ActionSpec{Name: "list_courses", Description: "Lists the courses."},
		Run: func(ctx context.Context, _ user.User, _ Params) (Result, error) {
			courses, err := deps.Courses.Query(ctx, course.QueryFilter{}, nil)
			if err != nil {
				return Result{}, err
			}
			titles := make([]string, 0, len(courses))
			for _, c := range courses {
				titles = append(titles, c.Title)
			}
			if len(titles) == 0 {
				return Result{Summary: "There are no courses yet.", Data: courses}, nil
			}
			return Result{Summary: fmt.Sprintf("There are %d courses: %s.", len(titles), strings.Join(titles, ", ")), Data: courses}, nil
		},
	})

	add(Action{
		Spec:     ai.ActionSpec{Name: "create_course", Description: "Creates a draft course, optionally generating its modules and lessons.", Params: []string{"title", "description", "level", "generate"}},
		Mutating: true,
		Run: func(ctx context.Context, caller user.User, p Params) (Result, error) {
			if err := p.Require("title"); err != nil {
				return Result{}, err
			}
			c, err := deps.Courses.Create(ctx, course.NewCourse{
				Title:       p.String("title"),
				Description: p.String("description"),
				Level:       strings.ToLower(p.String("level")),
				Tags:        p.Strings("tags"),
				TeacherID:   caller.ID,
			})
			if err != nil {
				return Result{}, err
			}
			res := Result{Summary: fmt.Sprintf("I created the course %q.", c.Title), Data: c, Navigate: "/admin/courses/" + c.ID}
			if !p.Bool("generate") || deps.Flows == nil {
				return res, nil
			}

			content, err := deps.Flows.GenerateCourseContent(ctx, ai.CourseContentInput{Title: c.Title, Description: c.Description, Level: c.Level})
			if err != nil {
				return res, errors.Wrap(err, "generating course content")
			}
			uc := generatedUpdate(c, content)
			if c, err = deps.Courses.Update(ctx, c.ID, uc); err != nil {
				return res, errors.Wrap(err, "saving generated content")
			}
			res.Data = c
			res.Summary = fmt.Sprintf("I created the course %q with %d modules.", c.Title, len(c.Modules))
			return res, nil
		},
	})

	add(Action{
		Spec:     ai.ActionSpec{Name: "update_course", Description: "Updates the title, description, level or tags of a course.", Params: []string{"courseId", "title", "description", "level", "tags"}},
		Mutating: true,
		Run: func(ctx context.Context, _ user.User, p Params) (Result, error) {
			if err := p.Require("courseId"); err != nil {
				return Result{}, err
			}
			var uc course.UpdateCourse
			if v := p.String("title"); v != "" {
				uc.Title = &v
			}
			if v := p.String("description"); v != "" {
				uc.Description = &v
			}
			if v := strings.ToLower(p.String("level")); v != "" {
				uc.Level = &v
			}
			if _, ok := p["tags"]; ok {
				tags := p.Strings("tags")
				uc.Tags = &tags
			}
			c, err := deps.Courses.Update(ctx, p.String("courseId"), uc)
			if err != nil {
				return Result{}, err
			}
			return Result{Summary: fmt.Sprintf("I updated the course %q.", c.Title), Data: c}, nil
		},
	})

	add(Action{
		Spec:     ai.ActionSpec{Name: "publish_course", Description: "Publishes a course so students can enroll.", Params: []string{"courseId"}},
		Mutating: true,
		Run: func(ctx context.Context, _ user.User, p Params) (Result, error) {
			if err := p.Require("courseId"); err != nil {
				return Result{}, err
			}
			status := course.StatusPublished
			c, err := deps.Courses.Update(ctx, p.String("courseId"), course.UpdateCourse{Status: &status})
			if err != nil {
				return Result{}, err
			}
			return Result{Summary: fmt.Sprintf("The course %q is now published.", c.Title), Data: c}, nil
		},
	})

	add(Action{
		Spec:        ai.ActionSpec{Name: "delete_course", Description: "Deletes a course.", Params: []string{"courseId"}},
		Mutating:    true,
		Destructive: true,
		Run: func(ctx context.Context, _ user.User, p Params) (Result, error) {
			if err := p.Require("courseId"); err != nil {
				return Result{}, err
			}
			c, err := deps.Courses.Get(ctx, p.String("courseId"))
			if err != nil {
				return Result{}, err
			}
			if err := deps.Courses.Delete(ctx, c.ID); err != nil {
				return Result{}, err
			}
			return Result{Summary: fmt.Sprintf("I deleted the course %q.", c.Title)}, nil
		},
	})

	for _, kind := range coursework.Kinds {
		kind := kind
		noun := strings.TrimSuffix(kind, "s")
		article := "a"
		if strings.ContainsRune("aeiou", rune(noun[0])) {
			article = "an"
		}

		spec := ai.ActionSpec{
			Name:        "create_" + noun,
			Description: fmt.Sprintf("Creates %s %s for a course.", article, noun),
			Params:      []string{"courseId", "title", "description", "maxGrade"},
		}
		if kind == coursework.KindExam {
			spec.Description += ` "questions" is a list of {"prompt", "options", "answerIndex", "points"} objects; at least one is required.`
			spec.Params = append(spec.Params, "questions", "durationMinutes", "passingScore")
		}

		add(Action{
			Spec:     spec,
			Mutating: true,
			Run: func(ctx context.Context, caller user.User, p Params) (Result, error) {
				required := []string{"courseId", "title"}
				if kind == coursework.KindExam {
					required = append(required, "questions")
				}
				if err := p.Require(required...); err != nil {
					return Result{}, err
				}
				nw := coursework.NewWork{
					Title:       p.String("title"),
					Description: p.String("description"),
					CourseID:    p.String("courseId"),
					CreatedBy:   caller.ID,
				}
				if g, ok := p.Float("maxGrade"); ok {
					nw.MaxGrade = g
				}
				if kind == coursework.KindExam {
					if err := p.Decode("questions", &nw.Questions); err != nil {
						return Result{}, err
					}
					if d, ok := p.Float("durationMinutes"); ok {
						nw.DurationMinutes = int(d)
					}
					if s, ok := p.Float("passingScore"); ok {
						nw.PassingScore = s
					}
				}
				w, err := deps.Coursework.Create(ctx, kind, nw)
				if err != nil {
					return Result{}, err
				}
				return Result{Summary: fmt.Sprintf("I created the %s %q.", noun, w.Title), Data: w, Navigate: "/admin/" + kind}, nil
			},
		})

		add(Action{
			Spec:        ai.ActionSpec{Name: "delete_" + noun, Description: fmt.Sprintf("Deletes %s %s.", article, noun), Params: []string{"id"}},
			Mutating:    true,
			Destructive: true,
			Run: func(ctx context.Context, _ user.User, p Params) (Result, error) {
				if err := p.Require("id"); err != nil {
					return Result{}, err
				}
				w, err := deps.Coursework.Get(ctx, kind, p.String("id"))
				if err != nil {
					return Result{}, err
				}
				if err := deps.Coursework.Delete(ctx, kind, w.ID); err != nil {
					return Result{}, err
				}
				return Result{Summary: fmt.Sprintf("I deleted the %s %q.", noun, w.Title)}, nil
			},
		})
	}

	sendAction := func(name, kind, noun string) Action {
		return Action{
			Spec: ai.ActionSpec{
				Name:        name,
				Description: fmt.Sprintf("Sends a %s to everyone (general), admins, a course or a user.", noun),
				Params:      []string{"title", "body", "targetType", "targetId"},
			},
			Mutating: true,
			Run: func(ctx context.Context, caller user.User, p Params) (Result, error) {
				target := p.String("targetType")
				if target == "" {
					target = message.TargetGeneral
				}
				m, err := deps.Messages.Send(ctx, kind, message.NewMessage{
					Title:      p.String("title"),
					Body:       p.String("body"),
					TargetType: target,
					TargetID:   p.String("targetId"),
					SenderID:   caller.ID,
				})
				if err != nil {
					return Result{}, err
				}
				return Result{Summary: fmt.Sprintf("I sent the %s %q.", noun, m.Title), Data: m}, nil
			},
		}
	}
	add(sendAction("send_message", message.KindMessage, "message"))
	add(sendAction("send_notification", message.KindNotification, "notification"))

	add(Action{
		Spec:        ai.ActionSpec{Name: "delete_message", Description: "Deletes a message or a notification.", Params: []string{"id", "kind"}},
		Mutating:    true,
		Destructive: true,
		Run: func(ctx context.Context, _ user.User, p Params) (Result, error) {
			if err := p.Require("id"); err != nil {
				return Result{}, err
			}
			kind := message.KindMessage
			if strings.HasPrefix(p.String("kind"), "notification") {
				kind = message.KindNotification
			}
			if err := deps.Messages.Delete(ctx, kind, p.String("id")); err != nil {
				return Result{}, err
			}
			return Result{Summary: "I deleted it."}, nil
		},
	})

	add(Action{
		Spec: ai.ActionSpec{Name: "count_users", Description: "Counts the users, optionally by role (admin, teacher, student).", Params: []string{"role"}},
		Run: func(ctx context.Context, _ user.User, p Params) (Result, error) {
			var filter *user.QueryFilter
			role := strings.ToLower(p.String("role"))
			if role != "" {
				filter = &user.QueryFilter{Roles: []string{strings.TrimSuffix(role, ":") + ":"}}
			}
			users, err := deps.Users.Query(ctx, filter, nil)
			if err != nil {
				return Result{}, err
			}
			label := "users"
			if role != "" {
				label = strings.TrimSuffix(role, ":") + "s"
			}
			return Result{Summary: fmt.Sprintf("There are %d %s.", len(users), label), Data: len(users)}, nil
		},
	})

	add(Action{
		Spec: ai.ActionSpec{Name: "navigate", Description: "Opens a page: dashboard, courses, users, assignments, exams, projects, messages, notifications, subscriptions or settings.", Params: []string{"page"}},
		Run: func(_ context.Context, _ user.User, p Params) (Result, error) {
			page := strings.ToLower(p.String("page"))
			path, ok := pages[page]
			if !ok {
				return Result{}, errors.Errorf("unknown page %q", page)
			}
			return Result{Summary: "Opening the " + page + ".", Navigate: path}, nil
		},
	})

	return actions
}

func generatedUpdate(c course.Course, content ai.CourseContent) course.UpdateCourse {
	modules := make([]course.NewModule, 0, len(content.Modules))
	for _, gm := range content.Modules {
		nm := course.NewModule{Title: gm.Title}
		for _, gl := range gm.Lessons {
			nm.Lessons = append(nm.Lessons, course.NewLesson{Title: gl.Title, Content: gl.Content})
		}
		modules = append(modules, nm)
	}
	uc := course.UpdateCourse{Modules: &modules}
	if c.Description == "" && content.Description != "" {
		uc.Description = &content.Description
	}
	if len(c.Tags) == 0 && len(content.Tags) > 0 {
		uc.Tags = &content.Tags
	}
	return uc
}
