package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-tellstick/internal/bridges/hass"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/controller"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/protocol"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
)

// errorRule maps gateway errors onto a response.
type errorRule struct {
	status  int
	code    string
	targets []error
}

// errorRules classify errors from the bridge, the encoders and the
// session. The first rule with a matching target wins.
var errorRules = []errorRule{
	{http.StatusNotFound, ErrCodeNotFound, []error{
		hass.ErrUnknownEntity,
		hass.ErrNotCommandEntity,
	}},
	{http.StatusUnprocessableEntity, ErrCodeValidation, []error{
		hass.ErrInvalidCommand,
		protocol.ErrUnknownProtocol,
		protocol.ErrUnsupportedModel,
		protocol.ErrUnsupportedMethod,
		protocol.ErrInvalidAddress,
	}},
	{http.StatusServiceUnavailable, ErrCodeUnavailable, []error{
		controller.ErrSessionClosed,
		controller.ErrNotStarted,
	}},
}

// classify returns the rule for err, or false for unexpected errors.
func classify(err error) (errorRule, bool) {
	for _, rule := range errorRules {
		for _, target := range rule.targets {
			if errors.Is(err, target) {
				return rule, true
			}
		}
	}
	return errorRule{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client may be gone
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeUnavailable answers 503 for a disabled component.
func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
