package shared

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// errorBody is the JSON shape every error response uses.
type errorBody struct {
	Error struct {
		Kind  Kind   `json:"kind"`
		Field string `json:"field,omitempty"`
		Msg   string `json:"message"`
	} `json:"error"`
}

// RespondJSON writes v as a JSON response.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// RespondError maps a typed error to an HTTP status and writes the JSON
// error body. Unknown and storage errors surface a generic message so
// internals never leak to callers.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var body errorBody
	status := http.StatusInternalServerError
	body.Error.Msg = "internal error"

	var appErr *Error
	if errors.As(err, &appErr) {
		body.Error.Kind = appErr.Kind
		body.Error.Field = appErr.Field
		switch appErr.Kind {
		case KindValidation:
			status = http.StatusBadRequest
			body.Error.Msg = appErr.Msg
		case KindNotFound:
			status = http.StatusNotFound
			body.Error.Msg = appErr.Msg
		case KindConflict:
			status = http.StatusConflict
			body.Error.Msg = appErr.Msg
		case KindInvariant, KindLocked:
			status = http.StatusUnprocessableEntity
			body.Error.Msg = appErr.Msg
		case KindStorage:
			status = http.StatusInternalServerError
			body.Error.Kind = KindStorage
		}
	} else {
		body.Error.Kind = KindStorage
	}

	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", slog.Any("error", err))
	}
	RespondJSON(w, status, body)
}

// DecodeJSON reads the request body into dst, rejecting malformed or
// trailing input.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return Validationf("body", "invalid JSON payload: %v", err)
	}
	return nil
}
