package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexlms/codex/core/course"
	"github.com/codexlms/codex/core/coursework"
	"github.com/codexlms/codex/core/user"
	"github.com/codexlms/codex/testutil"
)

func (env *testEnv) createExam(t *testing.T, courseID string) coursework.Work {
	t.Helper()
	w, err := env.work.Create(context.Background(), coursework.KindExam, coursework.NewWork{
		Title:    "Quiz",
		CourseID: courseID,
		Questions: []coursework.NewQuestion{
			{Prompt: "2+2?", Options: []string{"3", "4"}, AnswerIndex: 1, Points: 1},
			{Prompt: "Go is?", Options: []string{"compiled", "interpreted"}, AnswerIndex: 0, Points: 1},
		},
		CreatedBy: env.teacher.ID,
	})
	require.NoError(t, err)
	return w
}

func Test_courseworkApi_create(t *testing.T) {
	env := setup(t)
	other := testutil.CreateUser(t, env.users, "Olivia Other", user.RoleTeacher)
	c := env.createCourse(t, "Go Basics", course.StatusPublished, env.teacher)

	assignment := marchallObj(t, coursework.NewWork{Title: "Build a CLI", CourseID: c.ID, MaxGrade: 100})
	tests := []httpTest{
		{name: "students cannot create", method: http.MethodPost, path: "/v1/coursework/assignments", token: env.token(t, env.student), body: assignment, wantCode: http.StatusForbidden},
		{name: "only the course teacher", method: http.MethodPost, path: "/v1/coursework/assignments", token: env.token(t, other), body: assignment, wantCode: http.StatusForbidden},
		{name: "unknown kind", method: http.MethodPost, path: "/v1/coursework/quizzes", token: env.token(t, env.teacher), body: assignment, wantCode: http.StatusNotFound},
		{
			name: "exam without questions", method: http.MethodPost, path: "/v1/coursework/exams", token: env.token(t, env.teacher), body: assignment,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"questions":"an exam needs at least one question"}`),
		},
		{name: "created", method: http.MethodPost, path: "/v1/coursework/assignments", token: env.token(t, env.teacher), body: assignment, wantCode: http.StatusCreated},
		{name: "list needs a course", path: "/v1/coursework/assignments", token: env.token(t, env.student), wantCode: http.StatusBadRequest},
	}
	runHTTPTests(t, env, tests)

	rec := env.do(http.MethodGet, "/v1/coursework/assignments?courseId="+c.ID, env.token(t, env.student))
	require.Equal(t, http.StatusOK, rec.Code)
	var works []coursework.Work
	decodeBody(t, rec, &works)
	require.Len(t, works, 1)
	assert.Equal(t, env.teacher.ID, works[0].CreatedBy)
}

func Test_courseworkApi_examAnswersHidden(t *testing.T) {
	env := setup(t)
	c := env.createCourse(t, "Go Basics", course.StatusPublished, env.teacher)
	exam := env.createExam(t, c.ID)

	answers := func(usr user.User) []int {
		rec := env.do(http.MethodGet, "/v1/coursework/exams/"+exam.ID, env.token(t, usr))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var w coursework.Work
		decodeBody(t, rec, &w)
		out := make([]int, 0, len(w.Questions))
		for _, q := range w.Questions {
			out = append(out, q.AnswerIndex)
		}
		return out
	}
	assert.Equal(t, []int{-1, -1}, answers(env.student))
	assert.Equal(t, []int{1, 0}, answers(env.teacher))
}

func Test_courseworkApi_submissions(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.createCourse(t, "Go Basics", course.StatusPublished, env.teacher)
	exam := env.createExam(t, c.ID)
	assignment, err := env.work.Create(ctx, coursework.KindAssignment, coursework.NewWork{Title: "Build a CLI", CourseID: c.ID, MaxGrade: 100})
	require.NoError(t, err)

	studentToken := env.token(t, env.student)
	teacherToken := env.token(t, env.teacher)
	examPath := "/v1/coursework/exams/" + exam.ID
	assignmentPath := "/v1/coursework/assignments/" + assignment.ID

	rec := env.do(http.MethodPost, examPath+"/submissions", studentToken, []byte(`{"answers":[1,0]}`))
	assert.Equal(t, http.StatusForbidden, rec.Code, "enrollment required")

	_, err = env.enrollments.Enroll(ctx, env.student.ID, c.ID)
	require.NoError(t, err)

	rec = env.do(http.MethodPost, examPath+"/submissions", studentToken, []byte(`{"answers":[1,1]}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sub coursework.Submission
	decodeBody(t, rec, &sub)
	assert.Equal(t, coursework.StatusGraded, sub.Status)
	require.NotNil(t, sub.Grade)
	assert.Equal(t, 50.0, *sub.Grade)

	rec = env.do(http.MethodPost, examPath+"/submissions", studentToken, []byte(`{"answers":[1,0]}`))
	assert.Equal(t, http.StatusConflict, rec.Code, "graded submissions are final")

	rec = env.do(http.MethodPost, assignmentPath+"/submissions", studentToken, []byte(`{"colabLink":"https://colab.example.com/x"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tests := []httpTest{
		{name: "own submission", path: assignmentPath + "/submissions/" + env.student.ID, token: studentToken, wantCode: http.StatusOK},
		{name: "others' submissions are hidden", path: assignmentPath + "/submissions/" + env.admin.ID, token: studentToken, wantCode: http.StatusNotFound},
		{name: "students cannot list", path: assignmentPath + "/submissions", token: studentToken, wantCode: http.StatusForbidden},
		{name: "teacher lists", path: assignmentPath + "/submissions", token: teacherToken, wantCode: http.StatusOK},
		{
			name: "students cannot grade", method: http.MethodPut, path: assignmentPath + "/submissions/" + env.student.ID + "/grade",
			token: studentToken, body: []byte(`{"grade":100}`), wantCode: http.StatusForbidden,
		},
		{
			name: "grade required", method: http.MethodPut, path: assignmentPath + "/submissions/" + env.student.ID + "/grade",
			token: teacherToken, body: []byte(`{"feedback":"ok"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "graded", method: http.MethodPut, path: assignmentPath + "/submissions/" + env.student.ID + "/grade",
			token: teacherToken, body: []byte(`{"grade":90,"feedback":"Nice"}`), wantCode: http.StatusOK,
		},
		{
			name: "grades are final", method: http.MethodPut, path: assignmentPath + "/submissions/" + env.student.ID + "/grade",
			token: teacherToken, body: []byte(`{"grade":40,"feedback":"Changed my mind"}`), wantCode: http.StatusConflict,
		},
		{
			name: "auto-scored exams are final", method: http.MethodPut, path: examPath + "/submissions/" + env.student.ID + "/grade",
			token: teacherToken, body: []byte(`{"grade":100}`), wantCode: http.StatusConflict,
		},
	}
	runHTTPTests(t, env, tests)

	got, err := env.work.GetSubmission(ctx, coursework.KindAssignment, assignment.ID, env.student.ID)
	require.NoError(t, err)
	assert.Equal(t, env.teacher.ID, got.GradedBy)
	assert.Equal(t, "Nice", got.Feedback)

	// students only ever get their own submissions
	other := testutil.CreateUser(t, env.users, "Otto Other", user.RoleStudent)
	rec = env.do(http.MethodGet, "/v1/submissions?userId="+env.student.ID, env.token(t, other))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = env.do(http.MethodGet, "/v1/submissions?courseId="+c.ID, teacherToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var subs []coursework.Submission
	decodeBody(t, rec, &subs)
	assert.Len(t, subs, 2)
}
