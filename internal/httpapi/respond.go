package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MAKaminski/alpha-kite/internal/config"
	"github.com/MAKaminski/alpha-kite/internal/filter"
	"github.com/MAKaminski/alpha-kite/internal/ingest"
	"github.com/MAKaminski/alpha-kite/internal/model"
	"github.com/MAKaminski/alpha-kite/internal/schema"
	"github.com/MAKaminski/alpha-kite/internal/store"
	"github.com/MAKaminski/alpha-kite/internal/validate"
)

// paramError is a malformed query or path parameter.
type paramError struct {
	Param  string
	Reason string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]any{
		"error": message,
	})
}

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	var (
		unknown  *schema.UnknownTableError
		invalid  *filter.InvalidFilterError
		param    *paramError
		missing  *validate.MissingFieldError
		notConfd *config.NotConfiguredError
	)
	switch {
	case errors.As(err, &unknown), errors.As(err, &invalid), errors.As(err, &param), errors.As(err, &missing):
		return http.StatusBadRequest
	case store.IsNotFound(err), errors.Is(err, ingest.ErrNoData):
		return http.StatusNotFound
	case errors.As(err, &notConfd):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	respondError(w, err.Error(), status)
}

// intParam reads a positive integer query parameter, or def when absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, &paramError{Param: name, Reason: "must be a positive integer"}
	}
	return n, nil
}

// timeParam reads an RFC 3339 or YYYY-MM-DD query parameter.
func timeParam(r *http.Request, name string) (time.Time, bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, false, nil
	}
	t, ok := model.ParseTime(v)
	if !ok {
		return time.Time{}, false, &paramError{Param: name, Reason: "expected RFC 3339 or YYYY-MM-DD"}
	}
	return t, true, nil
}
