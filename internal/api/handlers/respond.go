package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/storagelabels/backend/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeErr maps domain errors onto HTTP statuses. Anything that is not
// an apperr.Error is an internal failure and is not echoed to clients.
func writeErr(w http.ResponseWriter, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		slog.Error("internal error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	status := http.StatusInternalServerError
	switch e.Kind {
	case apperr.KindInvalid:
		status = http.StatusBadRequest
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindFailed:
		status = http.StatusUnprocessableEntity
	case apperr.KindCritical:
		slog.Error("critical error", "error", err)
	}

	body := map[string]interface{}{"error": e.Message}
	if len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return apperr.New(apperr.KindInvalid, "invalid JSON body")
	}
	return nil
}
