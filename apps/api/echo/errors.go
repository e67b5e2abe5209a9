package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/ai"
	"github.com/codexlms/codex/core/assistant"
	"github.com/codexlms/codex/core/billing"
	"github.com/codexlms/codex/core/course"
	"github.com/codexlms/codex/core/coursework"
	"github.com/codexlms/codex/core/enrollment"
	"github.com/codexlms/codex/core/friend"
	"github.com/codexlms/codex/core/message"
	"github.com/codexlms/codex/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// domainErrStatuses maps the sentinel errors of the services to HTTP status codes.
var domainErrStatuses = map[error]int{
	core.ErrPermissionDenied: http.StatusForbidden,

	user.ErrNotFound:       http.StatusNotFound,
	user.ErrEmailExists:    http.StatusConflict,
	user.ErrUsernameExists: http.StatusConflict,

	course.ErrNotFound:       http.StatusNotFound,
	course.ErrModuleNotFound: http.StatusNotFound,
	course.ErrNothingToWrite: http.StatusBadRequest,

	coursework.ErrNotFound:           http.StatusNotFound,
	coursework.ErrSubmissionNotFound: http.StatusNotFound,
	coursework.ErrInvalidKind:        http.StatusNotFound,
	coursework.ErrAlreadyGraded:      http.StatusConflict,
	coursework.ErrInvalidAnswerIndex: http.StatusBadRequest,
	coursework.ErrGradeTooHigh:       http.StatusBadRequest,
	coursework.ErrNothingToWrite:     http.StatusBadRequest,

	enrollment.ErrNotFound:       http.StatusNotFound,
	enrollment.ErrCourseNotOpen:  http.StatusConflict,
	enrollment.ErrLessonNotFound: http.StatusNotFound,

	friend.ErrNotFound:          http.StatusNotFound,
	friend.ErrInvalidTransition: http.StatusConflict,
	friend.ErrSelfRequest:       http.StatusBadRequest,
	friend.ErrInvalidStatus:     http.StatusBadRequest,

	message.ErrNotFound:    http.StatusNotFound,
	message.ErrInvalidKind: http.StatusNotFound,

	billing.ErrNotFound:          http.StatusNotFound,
	billing.ErrUnknownPlan:       http.StatusBadRequest,
	billing.ErrUnknownFeature:    http.StatusBadRequest,
	billing.ErrLimitReached:      http.StatusPaymentRequired,
	billing.ErrAlreadySubscribed: http.StatusConflict,
	billing.ErrInvalidTransition: http.StatusConflict,

	ai.ErrEmptyResponse:          http.StatusBadGateway,
	assistant.ErrEmptyTranscript: http.StatusBadRequest,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if status, ok := domainErrStatuses[cause]; ok {
			code = status
			message = cause.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			case *core.ValidationError:
				if origErr.Fields != nil {
					fldErrs := make(map[string]string, len(origErr.Fields))
					for _, fErr := range origErr.Fields {
						fldErrs[fErr.Field] = fErr.Error
					}
					message = fldErrs
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID = claims.Subject
					usr.Username = claims.Username
					usr.Email = claims.Email
				}
				logger.Error(msg, errors.Wrap(err, msg), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
