package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"khanevadati/internal/core"
	"khanevadati/internal/log"
)

// Response is the envelope of every API response.
type Response struct {
	Data  any        `json:"data"`
	Error *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Kind    core.Kind `json:"kind"`
	Message string    `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Data: data})
}

// statusFor maps a ledger error kind to its HTTP status.
func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindInsufficientFunds, core.KindInvalidAmount, core.KindInvalidOperation:
		return http.StatusUnprocessableEntity
	case core.KindInvalidState, core.KindHasDependents:
		return http.StatusConflict
	case core.KindAccessDenied:
		return http.StatusForbidden
	case core.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err in the envelope. Internal failures are logged and
// reported without their details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)
	body := &ErrorBody{Kind: kind, Message: err.Error()}

	var ce *core.Error
	if status == http.StatusInternalServerError {
		fields := log.NewFields().WithLedger(chi.URLParam(r, "ns"), r.Header.Get(HeaderUserID))
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, log.ComponentHTTP, r.Method+" "+r.URL.Path, fields)
		body = &ErrorBody{Kind: core.KindInternal, Message: "internal error"}
	} else if errors.As(err, &ce) && ce.Message != "" {
		body.Message = ce.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Error: body})
}
