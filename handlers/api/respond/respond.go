package respond

import (
	"errors"
	"fmt"
	"garment-designer/core"
	"garment-designer/designer"
	"garment-designer/middleware"
	"garment-designer/sessions"
	"io"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// ErrBadRequest marks request bodies that could not be decoded or validated.
var ErrBadRequest = errors.New("invalid request")

var validate = validator.New()

// Status maps domain errors to HTTP status codes.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, designer.ErrInvalidColor),
		errors.Is(err, designer.ErrInvalidContent),
		errors.Is(err, designer.ErrMalformedDesign):
		return http.StatusBadRequest
	case errors.Is(err, designer.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, designer.ErrElementNotFound),
		errors.Is(err, sessions.ErrSessionNotFound),
		errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, designer.ErrGestureInProgress),
		errors.Is(err, designer.ErrNoGesture):
		return http.StatusConflict
	case errors.Is(err, designer.ErrUploadFailed):
		return http.StatusBadGateway
	case errors.Is(err, designer.ErrCaptureUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as a {"error": ...} body with its mapped status. Server
// side failures are logged and their details hidden from the client.
func Error(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := Status(err)
	fields := logrus.Fields{
		"error":  err,
		"path":   r.URL.Path,
		"status": status,
	}
	body := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logrus.WithFields(fields).Error(msg)
		body = msg
	} else {
		logrus.WithFields(fields).Warn(msg)
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": body})
}

// User returns the caller's identity, writing a 401 when there is none.
func User(w http.ResponseWriter, r *http.Request) (*core.User, bool) {
	user := middleware.UserFromContext(r.Context())
	if user == nil || user.Subject == "" {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "User claims not found"})
		return nil, false
	}
	return user, true
}

// Decode reads a JSON body into v and validates it. An empty body leaves v
// untouched when allowEmpty is set.
func Decode(r *http.Request, v any, allowEmpty bool) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}
