package course

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexlms/codex/core"
	dummydb "github.com/codexlms/codex/storage/database/dummy"
	"github.com/codexlms/codex/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	validate, _ := core.NewValidator()
	return NewService(dummydb.Open(), validate)
}

func TestService_CreateGetDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, NewCourse{Title: "X", Description: "Y", Tags: []string{"a", "b"}})
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)
	assert.Equal(t, StatusDraft, c.Status)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "X", got.Title)
	assert.Equal(t, "Y", got.Description)
	assert.Equal(t, []string{"a", "b"}, got.Tags)

	tagTests := []struct {
		name string
		tags []string
		want []string
	}{
		{name: "case is kept", tags: []string{"Go", "PostgreSQL", "gRPC"}, want: []string{"Go", "PostgreSQL", "gRPC"}},
		{name: "trimmed", tags: []string{" Go ", "\tWeb\n"}, want: []string{"Go", "Web"}},
		{name: "blanks dropped", tags: []string{"", "  ", "Go"}, want: []string{"Go"}},
		{name: "exact duplicates dropped", tags: []string{"Go", "go", "Go "}, want: []string{"Go", "go"}},
	}
	for _, tt := range tagTests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := svc.Create(ctx, NewCourse{Title: "Tagged", Tags: tt.tags})
			require.NoError(t, err)
			got, err := svc.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Tags)
		})
	}

	require.NoError(t, svc.Delete(ctx, c.ID))
	_, err = svc.Get(ctx, c.ID)
	assert.Equal(t, ErrNotFound, err)
	assert.Equal(t, ErrNotFound, svc.Delete(ctx, c.ID))
}

func TestService_CreateValidation(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name string
		data NewCourse
		tag  string
	}{
		{name: "blank title", data: NewCourse{Title: "   "}, tag: "required"},
		{name: "bad level", data: NewCourse{Title: "Go", Level: "guru"}, tag: "oneof"},
		{name: "negative price", data: NewCourse{Title: "Go", Price: -1}, tag: "gte"},
		{name: "lesson without title", data: NewCourse{Title: "Go", Modules: []NewModule{{Title: "M", Lessons: []NewLesson{{}}}}}, tag: "required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.data)
			var verrs validator.ValidationErrors
			require.True(t, errors.As(err, &verrs), "got %v", err)
			assert.Equal(t, tt.tag, verrs[0].Tag())
		})
	}
}

func TestService_Update(t *testing.T) {
	testutil.TickClock(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, NewCourse{Title: "Go 101", Description: "Basics", Tags: []string{"go"}, Price: 10})
	require.NoError(t, err)

	tags := []string{" Go ", "Backend", "", "Go"}
	updated, err := svc.Update(ctx, c.ID, UpdateCourse{Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "Backend"}, updated.Tags)
	assert.Equal(t, c.Title, updated.Title)
	assert.Equal(t, c.Description, updated.Description)
	assert.Equal(t, c.Price, updated.Price)
	assert.True(t, updated.UpdatedAt.After(c.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(c.CreatedAt))

	_, err = svc.Update(ctx, c.ID, UpdateCourse{})
	assert.Equal(t, ErrNothingToWrite, errors.Cause(err).(*core.ValidationError).Err)

	title := "Go"
	_, err = svc.Update(ctx, "missing", UpdateCourse{Title: &title})
	assert.Equal(t, ErrNotFound, err)

	status := "published"
	updated, err = svc.Update(ctx, c.ID, UpdateCourse{Status: &status})
	require.NoError(t, err)
	assert.True(t, updated.IsPublished())
}

func TestService_ModulesAndLessons(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, NewCourse{
		Title:   "Go",
		Modules: []NewModule{{Title: "Intro", Lessons: []NewLesson{{Title: "Hello"}, {Title: "Tooling"}}}},
	})
	require.NoError(t, err)
	require.Len(t, c.Modules, 1)
	assert.NotEmpty(t, c.Modules[0].ID)

	n, err := svc.CountLessons(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	c, err = svc.AddModule(ctx, c.ID, NewModule{Title: "Concurrency"})
	require.NoError(t, err)
	require.Len(t, c.Modules, 2)

	c, err = svc.AddLesson(ctx, c.ID, c.Modules[1].ID, NewLesson{Title: "Goroutines", DurationMinutes: 15})
	require.NoError(t, err)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalLessons())
	lesson := got.Modules[1].Lessons[0]
	assert.Equal(t, "Goroutines", lesson.Title)
	assert.True(t, got.HasLesson(lesson.ID))

	_, err = svc.AddLesson(ctx, c.ID, "nope", NewLesson{Title: "Lost"})
	assert.Equal(t, ErrModuleNotFound, err)
	_, err = svc.AddModule(ctx, "nope", NewModule{Title: "Lost"})
	assert.Equal(t, ErrNotFound, err)

	outline := got.Outline()
	assert.Empty(t, outline.Modules[1].Lessons[0].Content)
	assert.Equal(t, lesson.ID, outline.Modules[1].Lessons[0].ID)
}

func TestService_Query(t *testing.T) {
	testutil.TickClock(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	svc := newTestService(t)
	ctx := context.Background()

	create := func(nc NewCourse) Course {
		c, err := svc.Create(ctx, nc)
		require.NoError(t, err)
		return c
	}
	goCourse := create(NewCourse{Title: "Go", Tags: []string{"backend"}, TeacherID: "t1", Status: StatusPublished, Price: 5})
	rust := create(NewCourse{Title: "Rust", Description: "Systems programming", Tags: []string{"systems"}, TeacherID: "t2", Price: 20})
	react := create(NewCourse{Title: "React", Tags: []string{"frontend"}, TeacherID: "t1", Status: StatusPublished, Price: 15})

	titles := func(cs []Course) []string {
		out := make([]string, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.Title)
		}
		return out
	}

	tests := []struct {
		name      string
		filter    QueryFilter
		orderings []core.DBOrdering
		want      []Course
	}{
		{name: "newest first", want: []Course{react, rust, goCourse}},
		{name: "published", filter: QueryFilter{Status: "Published"}, want: []Course{react, goCourse}},
		{name: "tag", filter: QueryFilter{Tag: "backend"}, want: []Course{goCourse}},
		{name: "teacher", filter: QueryFilter{TeacherID: "t1"}, want: []Course{react, goCourse}},
		{name: "search", filter: QueryFilter{Search: "SYSTEM"}, want: []Course{rust}},
		{name: "by price", orderings: []core.DBOrdering{{Field: "price", Ascending: true}}, want: []Course{goCourse, react, rust}},
		{name: "unknown ordering", orderings: []core.DBOrdering{{Field: "secret"}}, want: []Course{react, rust, goCourse}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Query(ctx, tt.filter, tt.orderings)
			require.NoError(t, err)
			assert.Equal(t, titles(tt.want), titles(got))
		})
	}

	summaries, err := svc.Summaries(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []Summary{{ID: react.ID, Title: "React", Status: StatusPublished}, {ID: rust.ID, Title: "Rust", Status: StatusDraft}}, summaries)
}
