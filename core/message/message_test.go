package message

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/user"
	emailsvc "github.com/codexlms/codex/services/email"
	dummydb "github.com/codexlms/codex/storage/database/dummy"
)

type usersMock map[string]user.User

func (m usersMock) GetByID(_ context.Context, id string) (user.User, error) {
	usr, ok := m[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

type coursesMock map[string][]string

func (m coursesMock) CourseIDs(_ context.Context, userID string) ([]string, error) {
	return m[userID], nil
}

var (
	ann   = user.User{ID: "ann", Name: "Ann", Email: "ann@test.cd", Roles: []string{user.RoleStudent}, Settings: user.Settings{EmailNotifications: true}}
	bob   = user.User{ID: "bob", Name: "Bob", Email: "bob@test.cd", Roles: []string{user.RoleStudent}}
	admin = user.User{ID: "adm", Name: "Admin", Email: "adm@test.cd", Roles: []string{user.RoleAdminOwner}}
)

func newTestService(t *testing.T) (*Service, *emailsvc.ConsoleServiceMock) {
	t.Helper()
	clock := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	core.NowFunc = func() time.Time { clock = clock.Add(time.Second); return clock }
	t.Cleanup(func() { core.NowFunc = func() time.Time { return time.Now().UTC() } })

	validate, _ := core.NewValidator()
	mailSvc := emailsvc.NewConsoleServiceMock(core.NewTestConfig())
	users := usersMock{ann.ID: ann, bob.ID: bob, admin.ID: admin}
	courses := coursesMock{ann.ID: {"c1"}, bob.ID: {"c2"}, admin.ID: nil}
	return NewService(dummydb.Open(), users, courses, mailSvc, validate), mailSvc
}

func TestService_SendValidation(t *testing.T) {
	svc, mailSvc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		kind    string
		data    NewMessage
		wantErr string
	}{
		{name: "bad kind", kind: "letters", data: NewMessage{Title: "t", Body: "b", TargetType: TargetGeneral}, wantErr: ErrInvalidKind.Error()},
		{name: "missing body", kind: KindMessage, data: NewMessage{Title: "t", TargetType: TargetGeneral}, wantErr: "body"},
		{name: "bad target", kind: KindMessage, data: NewMessage{Title: "t", Body: "b", TargetType: "world"}, wantErr: "targetType"},
		{name: "course without id", kind: KindMessage, data: NewMessage{Title: "t", Body: "b", TargetType: TargetCourse}, wantErr: "targetId"},
		{name: "unknown user", kind: KindMessage, data: NewMessage{Title: "t", Body: "b", TargetType: TargetUser, TargetID: "zed"}, wantErr: user.ErrNotFound.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Send(ctx, tt.kind, tt.data)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
	assert.Empty(t, mailSvc.SentMessages())
}

func TestService_SendEmailsRecipient(t *testing.T) {
	svc, mailSvc := newTestService(t)
	ctx := context.Background()

	msg, err := svc.Send(ctx, KindMessage, NewMessage{Title: "Hi Ann", Body: "Welcome!", TargetType: TargetUser, TargetID: ann.ID, SenderID: admin.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	sent := mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, ann.Email, sent[0].To[0].Address)
	assert.True(t, strings.Contains(sent[0].TextContent, "Welcome!"))

	// bob has email notifications off
	_, err = svc.Send(ctx, KindMessage, NewMessage{Title: "Hi Bob", Body: "Welcome!", TargetType: TargetUser, TargetID: bob.ID})
	require.NoError(t, err)
	assert.Len(t, mailSvc.SentMessages(), 1)
}

func TestService_ListFor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	send := func(kind, targetType, targetID string) Message {
		msg, err := svc.Send(ctx, kind, NewMessage{Title: targetType + targetID, Body: "body", TargetType: targetType, TargetID: targetID})
		require.NoError(t, err)
		return msg
	}
	general := send(KindMessage, TargetGeneral, "ignored")
	toAnn := send(KindMessage, TargetUser, ann.ID)
	toBob := send(KindMessage, TargetUser, bob.ID)
	toC1 := send(KindMessage, TargetCourse, "c1")
	toC2 := send(KindMessage, TargetCourse, "c2")
	toAdmins := send(KindMessage, TargetAdmin, "")
	notif := send(KindNotification, TargetGeneral, "")

	ids := func(msgs []Message) []string {
		out := make([]string, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, m.ID)
		}
		return out
	}

	tests := []struct {
		name string
		kind string
		usr  user.User
		want []Message
	}{
		{name: "ann", kind: KindMessage, usr: ann, want: []Message{toC1, toAnn, general}},
		{name: "bob", kind: KindMessage, usr: bob, want: []Message{toC2, toBob, general}},
		{name: "admin", kind: KindMessage, usr: admin, want: []Message{toAdmins, general}},
		{name: "notifications", kind: KindNotification, usr: bob, want: []Message{notif}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ListFor(ctx, tt.kind, tt.usr)
			require.NoError(t, err)
			assert.Equal(t, ids(tt.want), ids(got))
		})
	}
	assert.Empty(t, general.TargetID)

	all, err := svc.ListAll(ctx, KindMessage)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestService_MarkReadAndDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	msg, err := svc.Send(ctx, KindNotification, NewMessage{Title: "Maintenance", Body: "Tonight", TargetType: TargetGeneral})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		msg, err = svc.MarkRead(ctx, KindNotification, msg.ID, ann.ID)
		require.NoError(t, err)
	}
	msg, err = svc.MarkRead(ctx, KindNotification, msg.ID, bob.ID)
	require.NoError(t, err)

	got, err := svc.Get(ctx, KindNotification, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{ann.ID, bob.ID}, got.ReadBy)
	assert.True(t, got.IsReadBy(bob.ID))

	_, err = svc.MarkRead(ctx, KindNotification, "nope", ann.ID)
	assert.Equal(t, ErrNotFound, err)

	require.NoError(t, svc.Delete(ctx, KindNotification, msg.ID))
	_, err = svc.Get(ctx, KindNotification, msg.ID)
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}
