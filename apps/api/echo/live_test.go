package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexlms/codex/core/course"
	"github.com/codexlms/codex/core/message"
	"github.com/codexlms/codex/core/user"
)

type liveClient struct {
	t  *testing.T
	ws *websocket.Conn
}

func dialLive(t *testing.T, env *testEnv, usr user.User) *liveClient {
	t.Helper()
	srv := httptest.NewServer(env.srv)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/live?token=" + env.token(t, usr)
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = ws.Close() })
	return &liveClient{t: t, ws: ws}
}

func (c *liveClient) send(action, topic string) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteJSON(LiveRequest{Action: action, Topic: topic}))
}

// next reads the next event and decodes its data into v.
func (c *liveClient) next(v interface{}) LiveEvent {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var raw struct {
		Topic string          `json:"topic"`
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	require.NoError(c.t, c.ws.ReadJSON(&raw))
	if v != nil && len(raw.Data) > 0 {
		require.NoError(c.t, json.Unmarshal(raw.Data, v))
	}
	return LiveEvent{Topic: raw.Topic, Error: raw.Error}
}

func TestLive_auth(t *testing.T) {
	env := setup(t)
	srv := httptest.NewServer(env.srv)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/live", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLive_courses(t *testing.T) {
	env := setup(t)
	draft := env.createCourse(t, "Go Internals", course.StatusDraft, env.teacher)
	client := dialLive(t, env, env.student)

	client.send("subscribe", TopicCourses)
	var courses []course.Course
	evt := client.next(&courses)
	assert.Equal(t, TopicCourses, evt.Topic)
	assert.Empty(t, evt.Error)
	assert.Empty(t, courses, "drafts are hidden from students")

	published := env.createCourse(t, "Go Basics", course.StatusPublished, env.teacher)
	courses = nil
	client.next(&courses)
	require.Len(t, courses, 1)
	assert.Equal(t, published.ID, courses[0].ID)
	assert.Empty(t, courses[0].Modules[0].Lessons[0].Content)

	status := course.StatusPublished
	_, err := env.courses.Update(context.Background(), draft.ID, course.UpdateCourse{Status: &status})
	require.NoError(t, err)
	courses = nil
	client.next(&courses)
	assert.Len(t, courses, 2)
}

func TestLive_messages(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	client := dialLive(t, env, env.student)

	client.send("subscribe", TopicMessages)
	var msgs []message.Message
	client.next(&msgs)
	assert.Empty(t, msgs)

	_, err := env.messages.Send(ctx, message.KindMessage, message.NewMessage{
		Title: "Staff only", Body: "Meeting at 5.", TargetType: message.TargetAdmin, SenderID: env.admin.ID,
	})
	require.NoError(t, err)
	msgs = nil
	client.next(&msgs)
	assert.Empty(t, msgs, "admin messages are not for students")

	sent, err := env.messages.Send(ctx, message.KindMessage, message.NewMessage{
		Title: "Hi", Body: "Welcome!", TargetType: message.TargetUser, TargetID: env.student.ID, SenderID: env.admin.ID,
	})
	require.NoError(t, err)
	msgs = nil
	client.next(&msgs)
	require.Len(t, msgs, 1)
	assert.Equal(t, sent.ID, msgs[0].ID)
}

func TestLive_topics(t *testing.T) {
	env := setup(t)
	client := dialLive(t, env, env.student)

	client.send("subscribe", "grades")
	evt := client.next(nil)
	assert.Equal(t, "grades", evt.Topic)
	assert.Equal(t, errUnknownTopic.Error(), evt.Error)

	client.send("dance", TopicFriends)
	evt = client.next(nil)
	assert.Equal(t, "unknown action", evt.Error)

	client.send("subscribe", TopicFriends)
	evt = client.next(nil)
	assert.Equal(t, TopicFriends, evt.Topic)
	assert.Empty(t, evt.Error)

	_, err := env.friends.Request(context.Background(), env.teacher.ID, env.student.ID)
	require.NoError(t, err)
	var friends []struct {
		FriendID string `json:"friendId"`
		Status   string `json:"status"`
	}
	client.next(&friends)
	require.Len(t, friends, 1)
	assert.Equal(t, env.teacher.ID, friends[0].FriendID)
	assert.Equal(t, "received", friends[0].Status)
}
