package echoapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexlms/codex/core/user"
	"github.com/codexlms/codex/testutil"
)

func Test_userApi_login(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	inactive := testutil.CreateUser(t, env.users, "Ned Dog", user.RoleStudent)
	isActive := false
	_, err := env.users.Update(ctx, inactive.ID, user.UpdateUser{IsActive: &isActive})
	require.NoError(t, err)

	login := func(uname, pwd string) []byte {
		return marchallObj(t, LoginRequest{Username: uname, Password: pwd})
	}

	tests := []httpTest{
		{name: "missing fields", body: login("", ""), wantCode: http.StatusBadRequest},
		{
			name: "unknown user", body: login("nobody", testutil.Password), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", body: login(env.student.Username, "wrong"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", body: login(inactive.Username, testutil.Password), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "by username", body: login(env.student.Username, testutil.Password), wantCode: http.StatusOK},
		{name: "by email (any case)", body: login("SAM_STUDENT@example.com", testutil.Password), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/v1/users/login", "", tt.body)
			checkCodeAndData(t, httpTest{wantCode: tt.wantCode, wantData: tt.wantData}, rec)
			if rec.Code == http.StatusOK {
				var resp LoginResponse
				decodeBody(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)
			}
		})
	}

	usr, err := env.users.GetByID(ctx, env.student.ID)
	require.NoError(t, err)
	assert.False(t, usr.LastLogin.IsZero())
}

func Test_userApi_auth(t *testing.T) {
	env := setup(t)
	studentToken := env.token(t, env.student)

	tests := []httpTest{
		{name: "no token", path: "/v1/users/me", wantCode: http.StatusUnauthorized},
		{name: "bad token", path: "/v1/users/me", token: "not.a.token", wantCode: http.StatusUnauthorized},
		{name: "me", path: "/v1/users/me", token: studentToken, wantCode: http.StatusOK},
		{
			name: "admin required", path: "/v1/users", token: studentToken, wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name: "another user is hidden", path: "/v1/users/" + env.teacher.ID, token: studentToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
		{name: "self", path: "/v1/users/" + env.student.ID, token: studentToken, wantCode: http.StatusOK},
		{name: "admin sees anyone", path: "/v1/users/" + env.student.ID, token: env.token(t, env.admin), wantCode: http.StatusOK},
	}
	runHTTPTests(t, env, tests)
}

func Test_userApi_tokenForDeletedUser(t *testing.T) {
	env := setup(t)
	token := env.token(t, env.student)
	require.NoError(t, env.users.Delete(context.Background(), env.student.ID))

	rec := env.do(http.MethodGet, "/v1/users/me", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func Test_userApi_query(t *testing.T) {
	env := setup(t)
	adminToken := env.token(t, env.admin)

	ids := func(rec *httptest.ResponseRecorder) []string {
		var users []user.User
		decodeBody(t, rec, &users)
		out := make([]string, 0, len(users))
		for _, u := range users {
			out = append(out, u.ID)
		}
		return out
	}

	rec := env.do(http.MethodGet, "/v1/users", adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{env.admin.ID, env.teacher.ID, env.student.ID}, ids(rec))

	rec = env.do(http.MethodGet, "/v1/users?role="+user.RoleTeacher, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{env.teacher.ID}, ids(rec))

	rec = env.do(http.MethodGet, "/v1/users?search=nobody", adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func Test_userApi_create(t *testing.T) {
	env := setup(t)

	newUser := func(uname string, roles ...string) []byte {
		return marchallObj(t, user.NewUser{
			Name:            "New User",
			Username:        uname,
			Email:           uname + "@example.com",
			Password:        testutil.Password,
			PasswordConfirm: testutil.Password,
			Roles:           roles,
		})
	}

	tests := []httpTest{
		{name: "admin required", method: http.MethodPost, path: "/v1/users/register", token: env.token(t, env.teacher), body: newUser("newbie"), wantCode: http.StatusForbidden},
		{name: "invalid", method: http.MethodPost, path: "/v1/users/register", token: env.token(t, env.admin), body: []byte(`{"name":"x"}`), wantCode: http.StatusBadRequest},
		{name: "created", method: http.MethodPost, path: "/v1/users/register", token: env.token(t, env.admin), body: newUser("newbie", user.RoleStudent), wantCode: http.StatusCreated},
		{
			name: "username taken", method: http.MethodPost, path: "/v1/users/register", token: env.token(t, env.admin),
			body: newUser(env.student.Username), wantCode: http.StatusBadRequest,
		},
		{
			name: "role above own", method: http.MethodPost, path: "/v1/users/register", token: env.token(t, env.admin),
			body: newUser("owner", user.RoleAdminOwner), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"roles":"not enough rights to set these roles"}`),
		},
	}
	runHTTPTests(t, env, tests)
}

func Test_userApi_update(t *testing.T) {
	env := setup(t)
	studentToken := env.token(t, env.student)

	rec := env.do(http.MethodPut, "/v1/users/"+env.student.ID, studentToken, []byte(`{"name":"Samuel Student"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var usr user.User
	decodeBody(t, rec, &usr)
	assert.Equal(t, "Samuel Student", usr.Name)

	rec = env.do(http.MethodPut, "/v1/users/"+env.student.ID, studentToken, []byte(`{"roles":["admin:"]}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPut, "/v1/users/"+env.student.ID+"/settings", studentToken, []byte(`{"theme":"dark","assistantVoice":"Kore"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeBody(t, rec, &usr)
	assert.Equal(t, "dark", usr.Settings.Theme)
	assert.Equal(t, "Kore", usr.Settings.AssistantVoice)
}

func Test_userApi_destroy(t *testing.T) {
	env := setup(t)
	adminToken := env.token(t, env.admin)
	owner := testutil.CreateUser(t, env.users, "Olga Owner", user.RoleAdminOwner)

	tests := []httpTest{
		{name: "admin required", method: http.MethodDelete, path: "/v1/users/" + env.student.ID, token: env.token(t, env.student), wantCode: http.StatusForbidden},
		{name: "not self", method: http.MethodDelete, path: "/v1/users/" + env.admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "not above", method: http.MethodDelete, path: "/v1/users/" + owner.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "not above (multiple)", method: http.MethodDelete, path: "/v1/users?id=" + env.student.ID + "&id=" + owner.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "deleted", method: http.MethodDelete, path: "/v1/users/" + env.student.ID, token: adminToken, wantCode: http.StatusNoContent},
		{name: "gone", method: http.MethodGet, path: "/v1/users/" + env.student.ID, token: adminToken, wantCode: http.StatusNotFound},
		{name: "multiple", method: http.MethodDelete, path: "/v1/users?id=" + env.teacher.ID, token: adminToken, wantCode: http.StatusNoContent},
	}
	runHTTPTests(t, env, tests)
}

func Test_userApi_passwordReset(t *testing.T) {
	env := setup(t)

	rec := env.do(http.MethodPost, "/v1/users/password-reset", "", []byte(`{"email":"nobody@example.com"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.mail.SentMessages())

	rec = env.do(http.MethodPost, "/v1/users/password-reset", "", []byte(`{"email":"`+env.student.Email+`"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.mail.SentMessages(), 1)
	assert.Equal(t, env.student.Email, env.mail.SentMessages()[0].To[0].Address)

	body := marchallObj(t, user.ResetUserPassword{
		Token:           "bad-token",
		UID:             user.EncodeUID(env.student),
		Password:        "N3w!password",
		PasswordConfirm: "N3w!password",
	})
	rec = env.do(http.MethodPost, "/v1/users/password-reset-confirm", "", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_userApi_refreshToken(t *testing.T) {
	env := setup(t)

	rec := env.do(http.MethodPost, "/v1/users/token-refresh", env.token(t, env.student))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp LoginResponse
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)

	claims := GetUserClaims(env.conf, env.student, 1)
	token, err := GenerateToken(env.conf, claims)
	require.NoError(t, err)
	rec = env.do(http.MethodPost, "/v1/users/token-refresh", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"refresh has expired"}`, rec.Body.String())
}
