package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	salt = []byte("codex.core.user.token_gen")

	// set from the config by NewService
	secretKey                 = []byte("secret")
	passwordResetTimeoutDelta = 3 * 24 * time.Hour
	nowFunc                   = time.Now // mockable

	b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// EncodeUID base64 encodes the given User ID.
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func decodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

// makeToken generates a password reset token for a given User.
// The token is invalidated as soon as the user's password or last login changes.
func makeToken(usr User) string {
	return makeTokenWithTimestamp(usr, hoursSince2001(nowFunc()))
}

// verifyToken checks that a password reset token for a given User is valid.
func verifyToken(usr User, token string) error {
	tsB32, _, found := strings.Cut(token, "-")
	if !found {
		return errInvalidToken
	}
	data, err := b32.DecodeString(tsB32)
	if err != nil {
		return errInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return errInvalidToken
	}

	// check that token has not been tampered with
	if subtle.ConstantTimeCompare([]byte(makeTokenWithTimestamp(usr, ts)), []byte(token)) == 0 {
		return errInvalidToken
	}

	// check that the timestamp is within limit
	if hoursSince2001(nowFunc())-ts > int(passwordResetTimeoutDelta/time.Hour) {
		return errTokenExpired
	}
	return nil
}

func makeTokenWithTimestamp(usr User, ts int) string {
	tsB32 := b32.EncodeToString([]byte(strconv.Itoa(ts)))
	return tsB32 + "-" + sign(hashValue(usr, ts))
}

func hoursSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(ref) / time.Hour)
}

func sign(val []byte) string {
	key := sha256.Sum256(append(append([]byte{}, salt...), secretKey...))
	h := hmac.New(sha256.New, key[:])
	h.Write(val)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func hashValue(usr User, ts int) []byte {
	val := make([]byte, 0, 128)
	val = append(val, usr.ID...)
	val = append(val, usr.PasswordHash...)
	if !usr.LastLogin.IsZero() {
		val = append(val, usr.LastLogin.UTC().Format(time.RFC3339Nano)...)
	}
	return append(val, strconv.Itoa(ts)...)
}
