package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/course"
)

var errNotTeacher = errors.New("the seeded course needs a teacher or an admin")

var demoCourse = course.NewCourse{
	Title:       "Go for Beginners",
	Description: "A first tour of Go: the toolchain, the type system and concurrency.",
	Tags:        []string{"go", "programming"},
	Category:    "Programming",
	Level:       "beginner",
	Status:      course.StatusPublished,
	Modules: []course.NewModule{
		{
			Title: "Getting started",
			Lessons: []course.NewLesson{
				{Title: "Installing Go", Content: "# Installing Go\n\nDownload the toolchain from go.dev and run `go version`.", DurationMinutes: 10},
				{Title: "Hello, world", Content: "# Hello, world\n\n```go\npackage main\n\nimport \"fmt\"\n\nfunc main() { fmt.Println(\"hello\") }\n```", DurationMinutes: 15},
			},
		},
		{
			Title: "Concurrency",
			Lessons: []course.NewLesson{
				{Title: "Goroutines", Content: "# Goroutines\n\nA goroutine is started with the `go` keyword.", DurationMinutes: 20},
				{Title: "Channels", Content: "# Channels\n\nChannels connect goroutines.", DurationMinutes: 20},
			},
		},
	},
	Resources: []course.NewResource{
		{Title: "A Tour of Go", URL: "https://go.dev/tour", Kind: "link"},
	},
}

func (cli *commandLine) seed(ctx context.Context, teacher string) (course.Course, error) {
	usr, err := cli.users.GetByUsernameOrEmail(ctx, core.CleanString(teacher, true /* lower */))
	if err != nil {
		return course.Course{}, err
	}
	if !(usr.IsTeacher() || usr.IsAdmin()) {
		return course.Course{}, errNotTeacher
	}
	nc := demoCourse
	nc.TeacherID = usr.ID
	return cli.courses.Create(ctx, nc)
}
