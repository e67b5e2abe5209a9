// Package testutil holds the helpers shared by the tests of several packages.
package testutil

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/user"
	logsvc "github.com/codexlms/codex/services/logger"
)

const Password = "S3cure!pass"

// CreateUser creates an active user through the user service; username and email derive from name.
func CreateUser(t *testing.T, svc *user.Service, name string, roles ...string) user.User {
	t.Helper()
	uname := strings.ToLower(strings.ReplaceAll(name, " ", "_"))
	usr, err := svc.Create(context.Background(), user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           uname + "@example.com",
		Password:        Password,
		PasswordConfirm: Password,
		Roles:           roles,
	})
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// NewValidator returns a validator with the core and user validators registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	return validate, translator
}

// NewLogger returns a logger which reports nowhere.
func NewLogger() core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), core.NewTestConfig())
}

// TickClock makes core.NowFunc advance by a minute on every call, from start.
func TickClock(t *testing.T, start time.Time) {
	t.Helper()
	clock := start.UTC()
	core.NowFunc = func() time.Time { clock = clock.Add(time.Minute); return clock }
	t.Cleanup(func() { core.NowFunc = func() time.Time { return time.Now().UTC() } })
}

// SetClock pins core.NowFunc to *now, which the test may move.
func SetClock(t *testing.T, now *time.Time) {
	t.Helper()
	core.NowFunc = func() time.Time { return now.UTC() }
	t.Cleanup(func() { core.NowFunc = func() time.Time { return time.Now().UTC() } })
}
