package enrollment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/course"
	dummydb "github.com/codexlms/codex/storage/database/dummy"
)

func setup(t *testing.T) (*Service, *course.Service) {
	t.Helper()
	validate, _ := core.NewValidator()
	db := dummydb.Open()
	courses := course.NewService(db, validate)
	return NewService(db, courses), courses
}

func createCourse(t *testing.T, courses *course.Service, status string, lessons int) course.Course {
	t.Helper()
	mod := course.NewModule{Title: "Module"}
	for i := 0; i < lessons; i++ {
		mod.Lessons = append(mod.Lessons, course.NewLesson{Title: "Lesson"})
	}
	c, err := courses.Create(context.Background(), course.NewCourse{Title: "Course", Status: status, Modules: []course.NewModule{mod}})
	require.NoError(t, err)
	return c
}

func TestProgress(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{3, 0, 0},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Progress(tt.completed, tt.total), "%d/%d", tt.completed, tt.total)
	}
}

func TestService_Enroll(t *testing.T) {
	svc, courses := setup(t)
	ctx := context.Background()
	draft := createCourse(t, courses, course.StatusDraft, 1)
	published := createCourse(t, courses, course.StatusPublished, 1)

	_, err := svc.Enroll(ctx, "u1", "missing")
	assert.Equal(t, course.ErrNotFound, err)
	_, err = svc.Enroll(ctx, "u1", draft.ID)
	assert.Equal(t, ErrCourseNotOpen, err)

	enr, err := svc.Enroll(ctx, "u1", published.ID)
	require.NoError(t, err)
	assert.Equal(t, published.ID, enr.CourseID)
	assert.Equal(t, 0, enr.Progress)

	again, err := svc.Enroll(ctx, "u1", published.ID)
	require.NoError(t, err)
	assert.True(t, enr.EnrolledAt.Equal(again.EnrolledAt))

	_, err = svc.Enroll(ctx, "u2", published.ID)
	require.NoError(t, err)

	mine, err := svc.ListForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := svc.ListForCourse(ctx, published.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ok, err := svc.IsEnrolled(ctx, "u2", published.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, svc.Unenroll(ctx, "u2", published.ID))
	ok, err = svc.IsEnrolled(ctx, "u2", published.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ErrNotFound, svc.Unenroll(ctx, "u2", published.ID))
}

func TestService_ToggleLesson(t *testing.T) {
	svc, courses := setup(t)
	ctx := context.Background()
	c := createCourse(t, courses, course.StatusPublished, 3)
	lessons := c.Modules[0].Lessons

	_, err := svc.ToggleLesson(ctx, "u1", c.ID, lessons[0].ID, true)
	assert.Equal(t, ErrNotFound, err)

	_, err = svc.Enroll(ctx, "u1", c.ID)
	require.NoError(t, err)

	_, err = svc.ToggleLesson(ctx, "u1", c.ID, "nope", true)
	assert.Equal(t, ErrLessonNotFound, err)

	enr, err := svc.ToggleLesson(ctx, "u1", c.ID, lessons[0].ID, true)
	require.NoError(t, err)
	assert.Equal(t, 33, enr.Progress)
	before := enr.Progress

	enr, err = svc.ToggleLesson(ctx, "u1", c.ID, lessons[1].ID, true)
	require.NoError(t, err)
	assert.Equal(t, 67, enr.Progress)

	// completing twice does not count twice
	enr, err = svc.ToggleLesson(ctx, "u1", c.ID, lessons[1].ID, true)
	require.NoError(t, err)
	assert.Equal(t, 67, enr.Progress)

	enr, err = svc.ToggleLesson(ctx, "u1", c.ID, lessons[1].ID, false)
	require.NoError(t, err)
	assert.Equal(t, before, enr.Progress)

	got, err := svc.Get(ctx, "u1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, before, got.Progress)
	assert.Equal(t, []string{lessons[0].ID}, got.CompletedLessons)
}
