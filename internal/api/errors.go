package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-echoes/internal/apperr"
)

type ApiError struct {
	StatusCode int               `json:"status_code"`
	Message    string            `json:"message"`
	Code       string            `json:"code,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	Err        error             `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewTooManyRequestsError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusTooManyRequests,
		Message:    lower(http.StatusText(http.StatusTooManyRequests)),
	}
}

// statusCode maps an application error onto an HTTP status.
func statusCode(e *apperr.Error) int {
	switch e.Kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindCredential:
		switch e.Code {
		case apperr.CodeEmailInUse:
			return http.StatusConflict
		case apperr.CodeWeakPassword, apperr.CodePasswordTooLong, apperr.CodeInvalidEmail:
			return http.StatusBadRequest
		case apperr.CodeUserNotFound:
			return http.StatusNotFound
		default:
			return http.StatusUnauthorized
		}
	default:
		return http.StatusInternalServerError
	}
}

// NewApiError converts a service error into its HTTP representation.
// Transport failures hide their cause from the client.
func NewApiError(err error) *ApiError {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		return NewInternalServerError(err)
	}

	status := statusCode(appErr)
	if status == http.StatusInternalServerError {
		errResp := NewInternalServerError(err)
		errResp.Code = appErr.Code
		return errResp
	}

	return &ApiError{
		StatusCode: status,
		Message:    appErr.Message,
		Code:       appErr.Code,
		Fields:     appErr.Fields,
		Err:        err,
	}
}
