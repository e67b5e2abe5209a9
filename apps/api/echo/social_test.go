package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexlms/codex/core/course"
	"github.com/codexlms/codex/core/friend"
	"github.com/codexlms/codex/core/message"
	"github.com/codexlms/codex/core/user"
	"github.com/codexlms/codex/testutil"
)

func Test_friendApi(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	inactive := testutil.CreateUser(t, env.users, "Ned Dog", user.RoleStudent)
	isActive := false
	_, err := env.users.Update(ctx, inactive.ID, user.UpdateUser{IsActive: &isActive})
	require.NoError(t, err)

	studentToken := env.token(t, env.student)
	teacherToken := env.token(t, env.teacher)

	tests := []httpTest{
		{name: "auth required", path: "/v1/friends", wantCode: http.StatusUnauthorized},
		{name: "self", method: http.MethodPost, path: "/v1/friends/" + env.student.ID, token: studentToken, wantCode: http.StatusBadRequest},
		{name: "unknown user", method: http.MethodPost, path: "/v1/friends/nope", token: studentToken, wantCode: http.StatusNotFound},
		{name: "inactive user", method: http.MethodPost, path: "/v1/friends/" + inactive.ID, token: studentToken, wantCode: http.StatusForbidden},
		{name: "request", method: http.MethodPost, path: "/v1/friends/" + env.teacher.ID, token: studentToken, wantCode: http.StatusCreated},
		{name: "request twice", method: http.MethodPost, path: "/v1/friends/" + env.teacher.ID, token: studentToken, wantCode: http.StatusConflict},
		{name: "requester cannot accept", method: http.MethodPut, path: "/v1/friends/" + env.teacher.ID + "/accept", token: studentToken, wantCode: http.StatusConflict},
		{name: "bad status filter", path: "/v1/friends?status=besties", token: teacherToken, wantCode: http.StatusBadRequest},
		{name: "accept", method: http.MethodPut, path: "/v1/friends/" + env.student.ID + "/accept", token: teacherToken, wantCode: http.StatusOK},
	}
	runHTTPTests(t, env, tests)

	rec := env.do(http.MethodGet, "/v1/friends?status="+friend.StatusAccepted, studentToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var friends []friend.Friend
	decodeBody(t, rec, &friends)
	require.Len(t, friends, 1)
	assert.Equal(t, env.teacher.ID, friends[0].FriendID)

	rec = env.do(http.MethodDelete, "/v1/friends/"+env.teacher.ID, studentToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(http.MethodGet, "/v1/friends", teacherToken)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func Test_messageApi_send(t *testing.T) {
	env := setup(t)
	other := testutil.CreateUser(t, env.users, "Olivia Other", user.RoleTeacher)
	c := env.createCourse(t, "Go Basics", course.StatusPublished, env.teacher)

	msg := func(targetType, targetID string) []byte {
		return marchallObj(t, message.NewMessage{Title: "Hi", Body: "Welcome!", TargetType: targetType, TargetID: targetID})
	}

	tests := []httpTest{
		{name: "students cannot send", method: http.MethodPost, path: "/v1/messages", token: env.token(t, env.student), body: msg(message.TargetGeneral, ""), wantCode: http.StatusForbidden},
		{name: "teachers cannot broadcast", method: http.MethodPost, path: "/v1/messages", token: env.token(t, env.teacher), body: msg(message.TargetGeneral, ""), wantCode: http.StatusForbidden},
		{name: "only to their courses", method: http.MethodPost, path: "/v1/messages", token: env.token(t, other), body: msg(message.TargetCourse, c.ID), wantCode: http.StatusForbidden},
		{name: "invalid", method: http.MethodPost, path: "/v1/messages", token: env.token(t, env.admin), body: []byte(`{"targetType":"general"}`), wantCode: http.StatusBadRequest},
		{name: "course message", method: http.MethodPost, path: "/v1/messages", token: env.token(t, env.teacher), body: msg(message.TargetCourse, c.ID), wantCode: http.StatusCreated},
		{name: "direct message", method: http.MethodPost, path: "/v1/messages", token: env.token(t, other), body: msg(message.TargetUser, env.student.ID), wantCode: http.StatusCreated},
		{name: "admin broadcast", method: http.MethodPost, path: "/v1/notifications", token: env.token(t, env.admin), body: msg(message.TargetGeneral, ""), wantCode: http.StatusCreated},
		{name: "admins only", method: http.MethodPost, path: "/v1/notifications", token: env.token(t, env.admin), body: msg(message.TargetAdmin, ""), wantCode: http.StatusCreated},
	}
	runHTTPTests(t, env, tests)
}

func Test_messageApi_read(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	c := env.createCourse(t, "Go Basics", course.StatusPublished, env.teacher)

	send := func(kind, targetType, targetID string) message.Message {
		m, err := env.messages.Send(ctx, kind, message.NewMessage{
			Title: "Hi", Body: "Welcome!", TargetType: targetType, TargetID: targetID, SenderID: env.admin.ID,
		})
		require.NoError(t, err)
		return m
	}
	general := send(message.KindMessage, message.TargetGeneral, "")
	courseMsg := send(message.KindMessage, message.TargetCourse, c.ID)
	adminMsg := send(message.KindMessage, message.TargetAdmin, "")
	notification := send(message.KindNotification, message.TargetUser, env.student.ID)

	studentToken := env.token(t, env.student)
	listed := func(path, token string) []string {
		rec := env.do(http.MethodGet, path, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var msgs []message.Message
		decodeBody(t, rec, &msgs)
		ids := make([]string, 0, len(msgs))
		for _, m := range msgs {
			ids = append(ids, m.ID)
		}
		return ids
	}

	assert.ElementsMatch(t, []string{general.ID}, listed("/v1/messages", studentToken))
	assert.ElementsMatch(t, []string{notification.ID}, listed("/v1/notifications", studentToken))
	assert.ElementsMatch(t, []string{general.ID, courseMsg.ID, adminMsg.ID}, listed("/v1/messages/all", env.token(t, env.admin)))

	_, err := env.enrollments.Enroll(ctx, env.student.ID, c.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{general.ID, courseMsg.ID}, listed("/v1/messages", studentToken))

	tests := []httpTest{
		{name: "all is for admins", path: "/v1/messages/all", token: studentToken, wantCode: http.StatusForbidden},
		{name: "course message", path: "/v1/messages/" + courseMsg.ID, token: studentToken, wantCode: http.StatusOK},
		{name: "admin message is hidden", path: "/v1/messages/" + adminMsg.ID, token: studentToken, wantCode: http.StatusNotFound},
		{name: "wrong kind", path: "/v1/messages/" + notification.ID, token: studentToken, wantCode: http.StatusNotFound},
		{name: "mark read", method: http.MethodPut, path: "/v1/notifications/" + notification.ID + "/read", token: studentToken, wantCode: http.StatusOK},
		{name: "cannot mark hidden", method: http.MethodPut, path: "/v1/messages/" + adminMsg.ID + "/read", token: studentToken, wantCode: http.StatusNotFound},
		{name: "delete is for admins", method: http.MethodDelete, path: "/v1/messages/" + general.ID, token: studentToken, wantCode: http.StatusForbidden},
		{name: "delete", method: http.MethodDelete, path: "/v1/messages/" + general.ID, token: env.token(t, env.admin), wantCode: http.StatusNoContent},
	}
	runHTTPTests(t, env, tests)

	got, err := env.messages.Get(ctx, message.KindNotification, notification.ID)
	require.NoError(t, err)
	assert.True(t, got.IsReadBy(env.student.ID))
	assert.ElementsMatch(t, []string{courseMsg.ID}, listed("/v1/messages", studentToken))
}
