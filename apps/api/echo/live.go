package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/course"
	"github.com/codexlms/codex/core/enrollment"
	"github.com/codexlms/codex/core/friend"
	"github.com/codexlms/codex/core/message"
	"github.com/codexlms/codex/core/user"
)

// Live topics
const (
	TopicCourses       = "courses"
	TopicMessages      = "messages"
	TopicNotifications = "notifications"
	TopicEnrollments   = "enrollments"
	TopicFriends       = "friends"
)

var errUnknownTopic = errors.New("unknown topic")

type (
	// LiveRequest is sent by the client to (un)subscribe a topic.
	LiveRequest struct {
		Action string `json:"action"` // subscribe|unsubscribe
		Topic  string `json:"topic"`
	}

	// LiveEvent carries the current content of a topic, sent on subscription and after every change.
	LiveEvent struct {
		Topic string      `json:"topic"`
		Data  interface{} `json:"data,omitempty"`
		Error string      `json:"error,omitempty"`
	}
)

type liveApi struct {
	logger   core.Logger
	db       core.DocumentStore
	users    *user.Service
	messages *message.Service
	upgrader websocket.Upgrader
}

func registerLiveAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := &liveApi{
		logger:   deps.Logger,
		db:       deps.Store,
		users:    deps.UserSvc,
		messages: deps.MessageSvc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == deps.Conf.FrontendBaseURL || deps.Conf.Debug || deps.Conf.TestMode
			},
		},
	}
	g.GET("/live", api.serve, jwt)
}

// liveConn is one websocket client; writes are serialized.
type liveConn struct {
	ws   *websocket.Conn
	usr  user.User
	mu   sync.Mutex
	subs map[string]context.CancelFunc
}

func (c *liveConn) send(evt LiveEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(evt)
}

func (api *liveApi) serve(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	ws, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// the upgrader already replied
		api.logger.Warn(fmt.Sprintf("upgrading live connection: %v", err), err, usr)
		return nil
	}
	defer ws.Close()

	connCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := &liveConn{ws: ws, usr: usr, subs: map[string]context.CancelFunc{}}

	for {
		var req LiveRequest
		if err := ws.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				api.logger.Debug(fmt.Sprintf("reading live request: %v", err), err, usr)
			}
			return nil
		}

		switch req.Action {
		case "subscribe":
			if _, ok := conn.subs[req.Topic]; ok {
				continue
			}
			subCtx, subCancel := context.WithCancel(connCtx)
			if err := api.subscribe(subCtx, conn, req.Topic); err != nil {
				subCancel()
				if err := conn.send(LiveEvent{Topic: req.Topic, Error: err.Error()}); err != nil {
					return nil
				}
				continue
			}
			conn.subs[req.Topic] = subCancel
		case "unsubscribe":
			if subCancel, ok := conn.subs[req.Topic]; ok {
				subCancel()
				delete(conn.subs, req.Topic)
			}
		default:
			if err := conn.send(LiveEvent{Topic: req.Topic, Error: "unknown action"}); err != nil {
				return nil
			}
		}
	}
}

// subscribe listens to the query behind topic and forwards what conn.usr may see.
func (api *liveApi) subscribe(ctx context.Context, conn *liveConn, topic string) error {
	var (
		q      core.Query
		render func(context.Context, []core.Document) (interface{}, error)
	)
	switch topic {
	case TopicCourses:
		q = core.NewQuery(course.Collection).OrderBy(core.DBOrdering{Field: "createdAt"})
		if !(conn.usr.IsAdmin() || conn.usr.IsTeacher()) {
			q = q.Where("status", core.OpEqual, course.StatusPublished)
		}
		render = renderCourses
	case TopicMessages, TopicNotifications:
		kind := topic
		q = core.NewQuery(kind)
		render = func(ctx context.Context, _ []core.Document) (interface{}, error) {
			return api.messages.ListFor(ctx, kind, conn.usr)
		}
	case TopicEnrollments:
		q = core.NewQuery(enrollment.Collection(conn.usr.ID))
		render = decodeAll[enrollment.Enrollment]
	case TopicFriends:
		q = core.NewQuery(friend.Collection(conn.usr.ID))
		render = decodeAll[friend.Friend]
	default:
		return errUnknownTopic
	}

	snapshots, err := api.db.Listen(ctx, q)
	if err != nil {
		return errors.Wrapf(err, "listening to %s", topic)
	}
	go func() {
		for snap := range snapshots {
			evt := LiveEvent{Topic: topic}
			if snap.Err != nil {
				api.logger.Error(fmt.Sprintf("live snapshot: %v", snap.Err), snap.Err, conn.usr, map[string]interface{}{"topic": topic})
				evt.Error = "snapshot failed"
			} else if data, err := render(ctx, snap.Docs); err != nil {
				api.logger.Error(fmt.Sprintf("rendering live snapshot: %v", err), err, conn.usr, map[string]interface{}{"topic": topic})
				evt.Error = "snapshot failed"
			} else {
				evt.Data = data
			}
			if ctx.Err() != nil {
				return
			}
			if err := conn.send(evt); err != nil {
				return
			}
		}
	}()
	return nil
}

func renderCourses(_ context.Context, docs []core.Document) (interface{}, error) {
	courses, err := core.DecodeDocuments[course.Course](docs)
	if err != nil {
		return nil, err
	}
	outlines := make([]course.Course, 0, len(courses))
	for _, c := range courses {
		outlines = append(outlines, c.Outline())
	}
	return outlines, nil
}

func decodeAll[T any](_ context.Context, docs []core.Document) (interface{}, error) {
	list, err := core.DecodeDocuments[T](docs)
	if err != nil {
		return nil, err
	}
	return list, nil
}
