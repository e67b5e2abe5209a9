package user

import (
	"context"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
)

type Service struct {
	db       core.DocumentStore
	mailSvc  core.EmailService
	validate *validator.Validate
}

func NewService(db core.DocumentStore, mailSvc core.EmailService, validate *validator.Validate, conf *core.Config) *Service {
	secretKey = []byte(conf.SecretKey)
	passwordResetTimeoutDelta = conf.PasswordResetTimeoutDelta
	return &Service{
		db:       db,
		mailSvc:  mailSvc,
		validate: validate,
	}
}

func (svc *Service) findOne(ctx context.Context, field, value string) (User, error) {
	docs, err := svc.db.Query(ctx, core.NewQuery(Collection).Where(field, core.OpEqual, value).WithLimit(1))
	if err != nil {
		return User{}, errors.Wrap(err, "querying users by "+field)
	}
	if len(docs) == 0 {
		return User{}, ErrNotFound
	}
	return fromDoc(docs[0])
}

// CheckUniqueness fails with a core.ValidationError when the username or email is already taken
// by any user other than exclUsers.
func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	excluded := func(usr User) bool {
		for _, u := range exclUsers {
			if u.ID == usr.ID {
				return true
			}
		}
		return false
	}
	check := func(field, value string, errExists error) error {
		if value == "" {
			return nil
		}
		usr, err := svc.findOne(ctx, field, value)
		switch {
		case err == ErrNotFound:
			return nil
		case err != nil:
			return err
		case excluded(usr):
			return nil
		}
		return core.NewValidationError(errExists, core.FieldError{Field: field, Error: errExists.Error()})
	}

	if err := check("username", uname, ErrUsernameExists); err != nil {
		return err
	}
	return check("email", email, ErrEmailExists)
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	if err := nu.Validate(ctx, svc.validate, svc); err != nil {
		return User{}, err
	}

	now := core.NowFunc()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		PhotoURL:  nu.PhotoURL,
		IsActive:  true,
		Roles:     nu.Roles,
		Settings:  Settings{Theme: "system", Language: "en", EmailNotifications: true},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	data, err := usr.toDoc()
	if err != nil {
		return User{}, err
	}
	usr.ID, err = svc.db.Create(ctx, Collection, data)
	if err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

// Query returns the users matching filter, sorted by orderings (name by default).
func (svc *Service) Query(ctx context.Context, filter *QueryFilter, orderings []core.DBOrdering) ([]User, error) {
	q := core.NewQuery(Collection)
	if filter != nil {
		if filter.IsActive != nil {
			q = q.Where("isActive", core.OpEqual, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			q = q.Where("createdAt", core.OpGreaterOrEqual, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			q = q.Where("createdAt", core.OpLessOrEqual, filter.CreatedTo.UTC())
		}
	}
	q = q.OrderBy(cleanOrderings(orderings)...)

	docs, err := svc.db.Query(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]User, 0, len(docs))
	for _, doc := range docs {
		usr, err := fromDoc(doc)
		if err != nil {
			return nil, err
		}
		if filter == nil || filter.match(usr) {
			users = append(users, usr)
		}
	}
	return users, nil
}

func cleanOrderings(orderings []core.DBOrdering) []core.DBOrdering {
	cleaned := make([]core.DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		if core.StringsContain(orderingFields, ord.Field) {
			cleaned = append(cleaned, ord)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, core.DBOrdering{Field: "name", Ascending: true})
	}
	return cleaned
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrNotFound
	}
	doc, err := svc.db.Get(ctx, Collection, id)
	if err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return User{}, ErrNotFound
		}
		return User{}, errors.Wrap(err, "getting user")
	}
	return fromDoc(doc)
}

func (svc *Service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.findOne(ctx, "username", core.CleanString(uname, true /* lower */))
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.findOne(ctx, "email", core.CleanString(email, true /* lower */))
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	usr, err := svc.GetByUsername(ctx, uname)
	if err == ErrNotFound {
		return svc.GetByEmail(ctx, uname)
	}
	return usr, err
}

func (svc *Service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err := uu.Validate(ctx, usr, svc.validate, svc); err != nil {
		return User{}, err
	}

	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	if uu.PhotoURL != nil {
		usr.PhotoURL = *uu.PhotoURL
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	usr.UpdatedAt = core.NowFunc()
	return usr, svc.save(ctx, usr)
}

func (svc *Service) save(ctx context.Context, usr User) error {
	data, err := usr.toDoc()
	if err != nil {
		return err
	}
	if err := svc.db.Update(ctx, Collection, usr.ID, data); err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return ErrNotFound
		}
		return errors.Wrap(err, "updating user")
	}
	return nil
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = core.NowFunc()
	err := svc.db.Update(ctx, Collection, usr.ID, map[string]interface{}{"lastLogin": usr.LastLogin})
	return usr, errors.Wrap(err, "setting lastLogin")
}

func (svc *Service) UpdateSettings(ctx context.Context, id string, us UpdateSettings) (User, error) {
	if err := svc.validate.Struct(us); err != nil {
		return User{}, err
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.Settings = us.apply(usr.Settings)
	usr.UpdatedAt = core.NowFunc()

	settings, err := core.EncodeDocument(usr.Settings)
	if err != nil {
		return User{}, err
	}
	err = svc.db.Update(ctx, Collection, id, map[string]interface{}{"settings": settings, "updatedAt": usr.UpdatedAt})
	return usr, errors.Wrap(err, "updating settings")
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	writes := make([]core.Write, 0, len(ids))
	for _, id := range ids {
		writes = append(writes, core.Write{Op: core.WriteDelete, Collection: Collection, ID: id})
	}
	return errors.Wrap(svc.db.Batch(ctx, writes...), "deleting users")
}

type passwordResetData struct {
	Name     string
	Username string
	UID      string
	Token    string
}

// RequestPasswordReset emails a signed reset link to the active user owning email.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: passwordResetData{
			Name:     usr.Name,
			Username: usr.Username,
			UID:      EncodeUID(usr),
			Token:    makeToken(usr),
		},
	})
	return nil
}

func (svc *Service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	if err := rp.Validate(svc.validate); err != nil {
		return err
	}
	invalidToken := core.NewValidationError(errInvalidToken, core.FieldError{Field: "token", Error: errInvalidToken.Error()})

	id, err := decodeUID(rp.UID)
	if err != nil {
		return invalidToken
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return invalidToken
		}
		return err
	}
	if err := verifyToken(usr, rp.Token); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
	}

	// run the password policy against the user attributes
	uu := UpdateUser{Password: rp.Password, PasswordConfirm: rp.PasswordConfirm}
	if _, err := svc.Update(ctx, usr.ID, uu); err != nil {
		return err
	}
	return nil
}

// EnsureActive returns ErrNotFound for missing users and core.ErrPermissionDenied for deactivated ones.
func (svc *Service) EnsureActive(ctx context.Context, id string) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !usr.IsActive {
		return User{}, core.ErrPermissionDenied
	}
	return usr, nil
}

// Lookup returns users by IDs, skipping missing ones.
func (svc *Service) Lookup(ctx context.Context, ids ...string) (map[string]User, error) {
	users := make(map[string]User, len(ids))
	for _, id := range ids {
		if _, ok := users[id]; ok {
			continue
		}
		usr, err := svc.GetByID(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		users[id] = usr
	}
	return users, nil
}
