package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/campus/rewards-engine/loyalty"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps an error kind to its HTTP status. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, loyalty.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, loyalty.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, loyalty.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, loyalty.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, loyalty.ErrGone):
		return http.StatusGone
	case errors.Is(err, loyalty.ErrTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(err, loyalty.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, loyalty.ErrInvalidInput),
		errors.Is(err, loyalty.ErrInsufficientPoints),
		errors.Is(err, loyalty.ErrInsufficientBudget):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Internal errors are logged with
// the request id and hidden from the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[api] %s %s (request %s): %v", r.Method, r.URL.Path, middleware.GetReqID(r.Context()), err)
		writeError(w, status, "Internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
