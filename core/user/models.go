package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/codexlms/codex/core"
)

const Collection = "users"

// Roles
const (
	// Admin
	RoleAdmin          = "admin:"
	RoleAdminOwner     = "admin:owner"
	RoleAdminPrincipal = "admin:principal"

	// Teacher
	RoleTeacher = "teacher:"

	// Student
	RoleStudent = "student:"
)

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminOwner, RoleAdminPrincipal}
	TeacherRoles = []string{RoleTeacher}
	StudentRoles = []string{RoleStudent}
	AllRoles     = getAllRoles()

	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleAdminOwner:     30,
		RoleAdminPrincipal: 29,
		RoleAdmin:          21,

		// Teachers: 20 - 11
		RoleTeacher: 11,

		// Students: 10 - 1
		RoleStudent: 1,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Admin Principal", Value: RoleAdminPrincipal},
		{Name: "Admin Owner", Value: RoleAdminOwner},
	}

	orderingFields = []string{"name", "username", "email", "createdAt", "lastLogin"}
)

func getAllRoles() []string {
	all := make([]string, 0, 5)
	all = append(all, AdminRoles...)
	all = append(all, TeacherRoles...)
	all = append(all, StudentRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Settings struct {
	Theme              string `json:"theme"`
	Language           string `json:"language"`
	EmailNotifications bool   `json:"emailNotifications"`
	AssistantVoice     string `json:"assistantVoice"`
	// AssistantAutoExecute lets the assistant run destructive actions without asking for confirmation.
	AssistantAutoExecute bool `json:"assistantAutoExecute"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PhotoURL     string    `json:"photoUrl"`
	IsActive     bool      `json:"isActive"`
	Roles        []string  `json:"roles"`
	Settings     Settings  `json:"settings"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"` // UTC
	UpdatedAt    time.Time `json:"updatedAt"` // UTC
	LastLogin    time.Time `json:"lastLogin"` // UTC
}

// userDoc is the stored shape of a User; the password hash never leaves the store otherwise.
type userDoc struct {
	User
	PasswordHash []byte `json:"passwordHash"`
}

func (u User) toDoc() (map[string]interface{}, error) {
	return core.EncodeDocument(userDoc{User: u, PasswordHash: u.PasswordHash})
}

func fromDoc(doc core.Document) (User, error) {
	var ud userDoc
	if err := doc.DataTo(&ud); err != nil {
		return User{}, err
	}
	usr := ud.User
	usr.PasswordHash = ud.PasswordHash
	return usr, nil
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsTeacher() bool {
	return u.RoleStartsWith(RoleTeacher)
}

func (u *User) IsStudent() bool {
	return u.RoleStartsWith(RoleStudent)
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	PhotoURL        string   `json:"photoUrl" validate:"omitempty,url"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"passwordConfirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.PhotoURL = core.CleanString(nu.PhotoURL)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	PhotoURL        *string  `json:"photoUrl" validate:"omitempty,url"`
	IsActive        *bool    `json:"isActive"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"passwordConfirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc *Service) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	uname := core.CleanString(uu.Username, true /* lower */)
	if uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if uu.PhotoURL != nil {
		photo := core.CleanString(*uu.PhotoURL)
		uu.PhotoURL = &photo
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr)
}

type UpdateSettings struct {
	Theme                *string `json:"theme" validate:"omitempty,oneof=light dark system"`
	Language             *string `json:"language" validate:"omitempty,bcp47_language_tag"`
	EmailNotifications   *bool   `json:"emailNotifications"`
	AssistantVoice       *string `json:"assistantVoice" validate:"omitempty,notblank"`
	AssistantAutoExecute *bool   `json:"assistantAutoExecute"`
}

func (us UpdateSettings) apply(s Settings) Settings {
	if us.Theme != nil {
		s.Theme = *us.Theme
	}
	if us.Language != nil {
		s.Language = *us.Language
	}
	if us.EmailNotifications != nil {
		s.EmailNotifications = *us.EmailNotifications
	}
	if us.AssistantVoice != nil {
		s.AssistantVoice = core.CleanString(*us.AssistantVoice)
	}
	if us.AssistantAutoExecute != nil {
		s.AssistantAutoExecute = *us.AssistantAutoExecute
	}
	return s
}

type ResetUserPassword struct {
	Token           string `json:"token" validate:"required"`
	UID             string `json:"uid" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"isActive"`
	CreatedFrom time.Time `query:"createdFrom"`
	CreatedTo   time.Time `query:"createdTo"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search, true /* lower */)
	qf.Roles = core.CleanStrings(qf.Roles)
}

// match applies the filter parts the document store cannot express.
// Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
func (qf *QueryFilter) match(usr User) bool {
	if qf.Search != "" &&
		!strings.Contains(strings.ToLower(usr.Name), qf.Search) &&
		!strings.Contains(usr.Username, qf.Search) &&
		!strings.Contains(usr.Email, qf.Search) {
		return false
	}
	if len(qf.Roles) > 0 {
		found := false
		for _, role := range qf.Roles {
			if usr.RoleStartsWith(role) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
