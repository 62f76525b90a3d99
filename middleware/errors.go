package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/viridial/authcore"
)

type errorBody struct {
	Error string `json:"error"`
}

// StatusCode maps err to the HTTP status of its class.
func StatusCode(err error) int {
	return authcore.ClassOf(err).HTTPStatus()
}

// WriteError writes {"error": msg} with the status err maps to. Only the
// public sentinel message leaves the process; internal errors go to Sentry.
// Errors carrying a retry wait also set Retry-After.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		err = authcore.ErrInternal
	}
	status := StatusCode(err)
	public := authcore.PublicError(err)

	if status == http.StatusInternalServerError {
		capture(r, err)
	}
	if wait, ok := authcore.RetryAfter(err); ok {
		w.Header().Set("Retry-After", retryAfterSeconds(wait))
	}

	WriteJSON(w, status, errorBody{Error: public.Error()})
}

// retryAfterSeconds rounds d up to whole seconds, never below one.
func retryAfterSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

// WriteJSON encodes v as the response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func capture(r *http.Request, err error) {
	if err == nil {
		return
	}
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}
