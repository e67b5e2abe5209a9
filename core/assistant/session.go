package assistant

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/ai"
)

const SessionCollection = "assistantSessions"

type (
	// PendingAction waits for the user to confirm it.
	PendingAction struct {
		Action    string                 `json:"action"`
		Params    map[string]interface{} `json:"params"`
		Reply     string                 `json:"reply"`
		CreatedAt time.Time              `json:"createdAt"`
	}

	// Session is the memory of the assistant for one user.
	Session struct {
		ID           string         `json:"id"` // the user ID
		History      []ai.Turn      `json:"history"`
		Pending      *PendingAction `json:"pending"`
		Awake        bool           `json:"awake"`
		AutoExecute  bool           `json:"autoExecute"`
		LastActiveAt time.Time      `json:"lastActiveAt"`
	}
)

func newSession(userID string) Session {
	return Session{ID: userID, History: []ai.Turn{}, LastActiveAt: core.NowFunc()}
}

// Append adds a turn, dropping the oldest ones beyond max.
func (s *Session) Append(role, text string, max int) {
	s.History = append(s.History, ai.Turn{Role: role, Text: text})
	if max > 0 && len(s.History) > max {
		s.History = append([]ai.Turn(nil), s.History[len(s.History)-max:]...)
	}
}

func (s Session) expired(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(s.LastActiveAt) > timeout
}

// SessionStore persists sessions in the document store.
type SessionStore struct {
	db          core.DocumentStore
	timeout     time.Duration
	historySize int
}

func NewSessionStore(db core.DocumentStore, conf *core.Config) *SessionStore {
	return &SessionStore{db: db, timeout: conf.Assistant.SessionTimeout, historySize: conf.Assistant.HistorySize}
}

// Load returns the user's session, or a new one when missing or inactive for too long.
func (ss *SessionStore) Load(ctx context.Context, userID string) (Session, error) {
	doc, err := ss.db.Get(ctx, SessionCollection, userID)
	if err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return newSession(userID), nil
		}
		return Session{}, errors.Wrap(err, "getting assistant session")
	}
	var s Session
	if err := doc.DataTo(&s); err != nil {
		return Session{}, err
	}
	if s.expired(core.NowFunc(), ss.timeout) {
		return newSession(userID), nil
	}
	if s.History == nil {
		s.History = []ai.Turn{}
	}
	return s, nil
}

func (ss *SessionStore) Save(ctx context.Context, s Session) error {
	if ss.historySize > 0 && len(s.History) > ss.historySize {
		s.History = s.History[len(s.History)-ss.historySize:]
	}
	s.LastActiveAt = core.NowFunc()
	data, err := core.EncodeDocument(s)
	if err != nil {
		return err
	}
	return errors.Wrap(ss.db.Set(ctx, SessionCollection, s.ID, data), "saving assistant session")
}

// Reset forgets the user's session.
func (ss *SessionStore) Reset(ctx context.Context, userID string) error {
	return errors.Wrap(ss.db.Delete(ctx, SessionCollection, userID), "deleting assistant session")
}

// PurgeExpired deletes the sessions inactive for longer than the timeout.
func (ss *SessionStore) PurgeExpired(ctx context.Context) (int, error) {
	if ss.timeout <= 0 {
		return 0, nil
	}
	q := core.NewQuery(SessionCollection).Where("lastActiveAt", core.OpLess, core.NowFunc().Add(-ss.timeout))
	docs, err := ss.db.Query(ctx, q)
	if err != nil {
		return 0, errors.Wrap(err, "querying assistant sessions")
	}
	if len(docs) == 0 {
		return 0, nil
	}
	writes := make([]core.Write, 0, len(docs))
	for _, doc := range docs {
		writes = append(writes, core.Write{Op: core.WriteDelete, Collection: SessionCollection, ID: doc.ID})
	}
	return len(writes), errors.Wrap(ss.db.Batch(ctx, writes...), "purging assistant sessions")
}
