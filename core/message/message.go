// Package message handles messages and notifications. Both share the same shape and live in
// their own root collections.
package message

import (
	"context"
	"net/mail"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/user"
)

// Kinds, also used as collection names.
const (
	KindMessage      = "messages"
	KindNotification = "notifications"
)

// Targets
const (
	TargetGeneral = "general"
	TargetCourse  = "course"
	TargetUser    = "user"
	TargetAdmin   = "admin"
)

// maximum number of values of an `in` filter supported by every backend
const inChunkSize = 10

var (
	ErrNotFound    = errors.New("message not found")
	ErrInvalidKind = errors.New("invalid message kind")
)

type Message struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	SenderID   string    `json:"senderId"`
	TargetType string    `json:"targetType"`
	TargetID   string    `json:"targetId"`
	ReadBy     []string  `json:"readBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (m Message) IsReadBy(userID string) bool {
	return core.StringsContain(m.ReadBy, userID)
}

type NewMessage struct {
	Title      string `json:"title" validate:"required,notblank,max=200"`
	Body       string `json:"body" validate:"required,notblank,max=10000"`
	TargetType string `json:"targetType" validate:"required,oneof=general course user admin"`
	TargetID   string `json:"targetId" validate:"max=128"`
	SenderID   string `json:"-"`
}

func (nm *NewMessage) Clean() {
	nm.Title = core.CleanString(nm.Title)
	nm.Body = core.CleanString(nm.Body)
	nm.TargetType = core.CleanString(nm.TargetType, true /* lower */)
	nm.TargetID = core.CleanString(nm.TargetID)
	if nm.TargetType == TargetGeneral || nm.TargetType == TargetAdmin {
		nm.TargetID = ""
	}
}

func (nm NewMessage) Validate(validate *validator.Validate) error {
	if err := validate.Struct(nm); err != nil {
		return err
	}
	if (nm.TargetType == TargetCourse || nm.TargetType == TargetUser) && nm.TargetID == "" {
		return core.NewFieldError("targetId", "targetId is required for "+nm.TargetType+" messages")
	}
	return nil
}

type (
	// UserGetter finds message recipients.
	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// CourseLister lists the courses a user is enrolled in.
	CourseLister interface {
		CourseIDs(ctx context.Context, userID string) ([]string, error)
	}
)

type Service struct {
	db          core.DocumentStore
	users       UserGetter
	enrollments CourseLister
	mailSvc     core.EmailService
	validate    *validator.Validate
}

func NewService(
	db core.DocumentStore,
	users UserGetter,
	enrollments CourseLister,
	mailSvc core.EmailService,
	validate *validator.Validate,
) *Service {
	return &Service{db: db, users: users, enrollments: enrollments, mailSvc: mailSvc, validate: validate}
}

func checkKind(kind string) error {
	if kind != KindMessage && kind != KindNotification {
		return ErrInvalidKind
	}
	return nil
}

type newMessageData struct {
	RecipientName string
	Title         string
	Body          string
}

// Send stores a message. The recipient of a user-targeted message is also emailed,
// unless they turned email notifications off.
func (svc *Service) Send(ctx context.Context, kind string, nm NewMessage) (Message, error) {
	if err := checkKind(kind); err != nil {
		return Message{}, err
	}
	nm.Clean()
	if err := nm.Validate(svc.validate); err != nil {
		return Message{}, err
	}

	var recipient user.User
	if nm.TargetType == TargetUser {
		usr, err := svc.users.GetByID(ctx, nm.TargetID)
		if err != nil {
			if err == user.ErrNotFound {
				return Message{}, core.NewFieldError("targetId", err.Error())
			}
			return Message{}, err
		}
		recipient = usr
	}

	msg := Message{
		Kind:       kind,
		Title:      nm.Title,
		Body:       nm.Body,
		SenderID:   nm.SenderID,
		TargetType: nm.TargetType,
		TargetID:   nm.TargetID,
		ReadBy:     []string{},
		CreatedAt:  core.NowFunc(),
	}
	data, err := core.EncodeDocument(msg)
	if err != nil {
		return Message{}, err
	}
	if msg.ID, err = svc.db.Create(ctx, kind, data); err != nil {
		return Message{}, errors.Wrapf(err, "creating %s", kind)
	}

	if recipient.Email != "" && recipient.Settings.EmailNotifications {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: recipient.Name, Address: recipient.Email}},
			Subject:      msg.Title,
			TemplateName: "new_message",
			TemplateData: newMessageData{RecipientName: recipient.Name, Title: msg.Title, Body: msg.Body},
		})
	}
	return msg, nil
}

func (svc *Service) Get(ctx context.Context, kind, id string) (Message, error) {
	if err := checkKind(kind); err != nil {
		return Message{}, err
	}
	if id == "" {
		return Message{}, ErrNotFound
	}
	doc, err := svc.db.Get(ctx, kind, id)
	if err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return Message{}, ErrNotFound
		}
		return Message{}, errors.Wrapf(err, "getting %s", kind)
	}
	var msg Message
	return msg, doc.DataTo(&msg)
}

// ListFor returns what usr may read: general messages, messages sent to them, to the courses
// they are enrolled in and, for admins, to admins. Newest first.
func (svc *Service) ListFor(ctx context.Context, kind string, usr user.User) ([]Message, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	base := core.NewQuery(kind)
	queries := []core.Query{
		base.Where("targetType", core.OpEqual, TargetGeneral),
		base.Where("targetType", core.OpEqual, TargetUser).Where("targetId", core.OpEqual, usr.ID),
	}
	if usr.IsAdmin() {
		queries = append(queries, base.Where("targetType", core.OpEqual, TargetAdmin))
	}

	courseIDs, err := svc.enrollments.CourseIDs(ctx, usr.ID)
	if err != nil {
		return nil, err
	}
	for start := 0; start < len(courseIDs); start += inChunkSize {
		end := start + inChunkSize
		if end > len(courseIDs) {
			end = len(courseIDs)
		}
		queries = append(queries, base.
			Where("targetType", core.OpEqual, TargetCourse).
			Where("targetId", core.OpIn, courseIDs[start:end]))
	}

	seen := make(map[string]struct{})
	var msgs []Message
	for _, q := range queries {
		docs, err := svc.db.Query(ctx, q)
		if err != nil {
			return nil, errors.Wrapf(err, "querying %s", kind)
		}
		found, err := core.DecodeDocuments[Message](docs)
		if err != nil {
			return nil, err
		}
		for _, msg := range found {
			if _, ok := seen[msg.ID]; ok {
				continue
			}
			seen[msg.ID] = struct{}{}
			msgs = append(msgs, msg)
		}
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

// ListAll returns every message of a kind, newest first; for admins.
func (svc *Service) ListAll(ctx context.Context, kind string) ([]Message, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	docs, err := svc.db.Query(ctx, core.NewQuery(kind).OrderBy(core.DBOrdering{Field: "createdAt"}))
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", kind)
	}
	return core.DecodeDocuments[Message](docs)
}

// MarkRead adds userID to the readers of a message. Concurrent reads of the same message are last-write-wins.
func (svc *Service) MarkRead(ctx context.Context, kind, id, userID string) (Message, error) {
	msg, err := svc.Get(ctx, kind, id)
	if err != nil {
		return Message{}, err
	}
	if msg.IsReadBy(userID) {
		return msg, nil
	}
	msg.ReadBy = append(msg.ReadBy, userID)

	data, err := core.NormalizeData(map[string]interface{}{"readBy": msg.ReadBy})
	if err != nil {
		return Message{}, err
	}
	if err := svc.db.Update(ctx, kind, id, data); err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return Message{}, ErrNotFound
		}
		return Message{}, errors.Wrapf(err, "updating %s", kind)
	}
	return msg, nil
}

func (svc *Service) Delete(ctx context.Context, kind, id string) error {
	if _, err := svc.Get(ctx, kind, id); err != nil {
		return err
	}
	return errors.Wrapf(svc.db.Delete(ctx, kind, id), "deleting %s", kind)
}
