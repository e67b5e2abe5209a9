package friend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/user"
	dummydb "github.com/codexlms/codex/storage/database/dummy"
)

type usersMock map[string]bool // id -> active

func (m usersMock) EnsureActive(_ context.Context, id string) (user.User, error) {
	active, ok := m[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if !active {
		return user.User{}, core.ErrPermissionDenied
	}
	return user.User{ID: id, IsActive: true}, nil
}

func newTestService() *Service {
	return NewService(dummydb.Open(), usersMock{"ann": true, "bob": true, "cid": true, "dan": false})
}

func statuses(t *testing.T, svc *Service, a, b string) [2]string {
	t.Helper()
	var out [2]string
	if f, err := svc.Get(context.Background(), a, b); err == nil {
		out[0] = f.Status
	}
	if f, err := svc.Get(context.Background(), b, a); err == nil {
		out[1] = f.Status
	}
	return out
}

func TestService_Request(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	tests := []struct {
		name    string
		from    string
		to      string
		wantErr error
	}{
		{name: "self", from: "ann", to: "ann", wantErr: ErrSelfRequest},
		{name: "unknown user", from: "ann", to: "eve", wantErr: user.ErrNotFound},
		{name: "inactive user", from: "ann", to: "dan", wantErr: core.ErrPermissionDenied},
		{name: "ok", from: "ann", to: "bob"},
		{name: "twice", from: "ann", to: "bob", wantErr: ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Request(ctx, tt.from, tt.to)
			assert.Equal(t, tt.wantErr, err)
		})
	}
	assert.Equal(t, [2]string{StatusSent, StatusReceived}, statuses(t, svc, "ann", "bob"))
}

func TestService_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		steps   func(svc *Service) error
		want    [2]string // ann's side, bob's side
		wantErr error
	}{
		{
			name: "accept",
			steps: func(svc *Service) error {
				_, err := svc.Accept(context.Background(), "bob", "ann")
				return err
			},
			want: [2]string{StatusAccepted, StatusAccepted},
		},
		{
			name: "decline",
			steps: func(svc *Service) error {
				_, err := svc.Decline(context.Background(), "bob", "ann")
				return err
			},
			want: [2]string{StatusDeclined, StatusDeclined},
		},
		{
			name: "sender cannot accept",
			steps: func(svc *Service) error {
				_, err := svc.Accept(context.Background(), "ann", "bob")
				return err
			},
			want:    [2]string{StatusSent, StatusReceived},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "crossing request accepts",
			steps: func(svc *Service) error {
				_, err := svc.Request(context.Background(), "bob", "ann")
				return err
			},
			want: [2]string{StatusAccepted, StatusAccepted},
		},
		{
			name: "accepted cannot be declined",
			steps: func(svc *Service) error {
				if _, err := svc.Accept(context.Background(), "bob", "ann"); err != nil {
					return err
				}
				_, err := svc.Decline(context.Background(), "bob", "ann")
				return err
			},
			want:    [2]string{StatusAccepted, StatusAccepted},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "request again after decline",
			steps: func(svc *Service) error {
				if _, err := svc.Decline(context.Background(), "bob", "ann"); err != nil {
					return err
				}
				_, err := svc.Request(context.Background(), "bob", "ann")
				return err
			},
			want: [2]string{StatusReceived, StatusSent},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService()
			_, err := svc.Request(context.Background(), "ann", "bob")
			require.NoError(t, err)

			assert.Equal(t, tt.wantErr, tt.steps(svc))
			assert.Equal(t, tt.want, statuses(t, svc, "ann", "bob"))
		})
	}
}

func TestService_AcceptWithoutRequest(t *testing.T) {
	svc := newTestService()
	_, err := svc.Accept(context.Background(), "bob", "ann")
	assert.Equal(t, ErrNotFound, err)
	assert.Equal(t, [2]string{"", ""}, statuses(t, svc, "ann", "bob"))
}

func TestService_ListAndRemove(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Request(ctx, "ann", "bob")
	require.NoError(t, err)
	_, err = svc.Request(ctx, "cid", "ann")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, "ann", "cid")
	require.NoError(t, err)

	all, err := svc.List(ctx, "ann", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	accepted, err := svc.List(ctx, "ann", StatusAccepted)
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, "cid", accepted[0].FriendID)

	_, err = svc.List(ctx, "ann", "besties")
	assert.Equal(t, ErrInvalidStatus, err)

	require.NoError(t, svc.Remove(ctx, "cid", "ann"))
	assert.Equal(t, [2]string{"", ""}, statuses(t, svc, "ann", "cid"))
	assert.Equal(t, ErrNotFound, svc.Remove(ctx, "cid", "ann"))
}
