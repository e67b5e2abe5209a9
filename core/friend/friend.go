// Package friend manages friendships between users.
// Every relation is stored twice, once under each user, and both documents are always written together.
package friend

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/user"
)

const CollectionID = "friends"

// Statuses, as seen from the owner of the document.
const (
	StatusSent     = "sent"
	StatusReceived = "received"
	StatusAccepted = "accepted"
	StatusDeclined = "declined"
)

var (
	ErrNotFound          = errors.New("friend request not found")
	ErrInvalidTransition = errors.New("invalid friend request transition")
	ErrSelfRequest       = errors.New("cannot befriend oneself")
	ErrInvalidStatus     = errors.New("invalid friend status")
)

type Friend struct {
	ID        string    `json:"id"` // the other user's ID
	UserID    string    `json:"userId"`
	FriendID  string    `json:"friendId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Collection returns the path of a user's friends.
func Collection(userID string) string {
	return "users/" + userID + "/" + CollectionID
}

// UserChecker tells whether a user exists and is active.
type UserChecker interface {
	EnsureActive(ctx context.Context, id string) (user.User, error)
}

type Service struct {
	db    core.DocumentStore
	users UserChecker
}

func NewService(db core.DocumentStore, users UserChecker) *Service {
	return &Service{db: db, users: users}
}

func (svc *Service) Get(ctx context.Context, userID, friendID string) (Friend, error) {
	if userID == "" || friendID == "" {
		return Friend{}, ErrNotFound
	}
	doc, err := svc.db.Get(ctx, Collection(userID), friendID)
	if err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return Friend{}, ErrNotFound
		}
		return Friend{}, errors.Wrap(err, "getting friend")
	}
	var f Friend
	return f, doc.DataTo(&f)
}

// Request sends a friend request from `from` to `to`.
// A declined request may be sent again by either side; a request crossing a pending one accepts it.
func (svc *Service) Request(ctx context.Context, from, to string) (Friend, error) {
	if from == to {
		return Friend{}, ErrSelfRequest
	}
	if _, err := svc.users.EnsureActive(ctx, to); err != nil {
		return Friend{}, err
	}

	existing, err := svc.Get(ctx, from, to)
	switch {
	case err == ErrNotFound:
	case err != nil:
		return Friend{}, err
	case existing.Status == StatusReceived:
		return svc.Accept(ctx, from, to)
	case existing.Status != StatusDeclined:
		return Friend{}, ErrInvalidTransition
	}

	now := core.NowFunc()
	sent := Friend{ID: to, UserID: from, FriendID: to, Status: StatusSent, CreatedAt: now, UpdatedAt: now}
	received := Friend{ID: from, UserID: to, FriendID: from, Status: StatusReceived, CreatedAt: now, UpdatedAt: now}
	if err := svc.writePair(ctx, core.WriteSet, sent, received); err != nil {
		return Friend{}, err
	}
	return sent, nil
}

// Accept is called by the recipient of a request.
func (svc *Service) Accept(ctx context.Context, userID, requesterID string) (Friend, error) {
	return svc.answer(ctx, userID, requesterID, StatusAccepted)
}

// Decline is called by the recipient of a request.
func (svc *Service) Decline(ctx context.Context, userID, requesterID string) (Friend, error) {
	return svc.answer(ctx, userID, requesterID, StatusDeclined)
}

func (svc *Service) answer(ctx context.Context, userID, requesterID, status string) (Friend, error) {
	f, err := svc.Get(ctx, userID, requesterID)
	if err != nil {
		return Friend{}, err
	}
	if f.Status != StatusReceived {
		return Friend{}, ErrInvalidTransition
	}

	now := core.NowFunc()
	f.Status, f.UpdatedAt = status, now
	other := Friend{ID: userID, UserID: requesterID, FriendID: userID, Status: status, CreatedAt: f.CreatedAt, UpdatedAt: now}
	if err := svc.writePair(ctx, core.WriteUpdate, f, other); err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return Friend{}, ErrNotFound
		}
		return Friend{}, err
	}
	return f, nil
}

func (svc *Service) writePair(ctx context.Context, op int, a, b Friend) error {
	writes := make([]core.Write, 0, 2)
	for _, f := range []Friend{a, b} {
		var data map[string]interface{}
		var err error
		if op == core.WriteUpdate {
			data, err = core.NormalizeData(map[string]interface{}{"status": f.Status, "updatedAt": f.UpdatedAt})
		} else {
			data, err = core.EncodeDocument(f)
		}
		if err != nil {
			return err
		}
		writes = append(writes, core.Write{Op: op, Collection: Collection(f.UserID), ID: f.ID, Data: data})
	}
	return errors.Wrap(svc.db.Batch(ctx, writes...), "saving friends")
}

// List returns the user's relations, optionally with the given status only.
func (svc *Service) List(ctx context.Context, userID, status string) ([]Friend, error) {
	q := core.NewQuery(Collection(userID)).OrderBy(core.DBOrdering{Field: "updatedAt"})
	if status != "" {
		if !core.StringsContain([]string{StatusSent, StatusReceived, StatusAccepted, StatusDeclined}, status) {
			return nil, ErrInvalidStatus
		}
		q = q.Where("status", core.OpEqual, status)
	}
	docs, err := svc.db.Query(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "querying friends")
	}
	return core.DecodeDocuments[Friend](docs)
}

// Remove deletes the relation on both sides, whatever its status.
func (svc *Service) Remove(ctx context.Context, userID, friendID string) error {
	if _, err := svc.Get(ctx, userID, friendID); err != nil {
		return err
	}
	return errors.Wrap(svc.db.Batch(ctx,
		core.Write{Op: core.WriteDelete, Collection: Collection(userID), ID: friendID},
		core.Write{Op: core.WriteDelete, Collection: Collection(friendID), ID: userID},
	), "removing friend")
}
