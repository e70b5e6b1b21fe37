package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/synaptica-ai/medsplit/pkg/clinical"
	"github.com/synaptica-ai/medsplit/pkg/common/errs"
	"github.com/synaptica-ai/medsplit/pkg/common/logger"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.WithError(err).Error("failed to write json response")
	}
}

// writeError maps the error taxonomy onto status codes. Messages name fields,
// never values.
func writeError(w http.ResponseWriter, err error) {
	var (
		validation *errs.ValidationError
		violation  *errs.SecurityViolation
		down       *errs.StoreUnavailable
	)
	switch {
	case errors.As(err, &validation):
		writeJSONStatus(w, http.StatusBadRequest, errorResponse{Error: validation.Error(), Field: validation.Field})
	case errors.As(err, &violation):
		writeJSONStatus(w, http.StatusUnprocessableEntity, errorResponse{
			Error: "personal data is not allowed in clinical records",
			Field: violation.Field,
		})
	case errors.Is(err, clinical.ErrNotFound):
		writeJSONStatus(w, http.StatusNotFound, errorResponse{Error: "no medical data for this identifier"})
	case errors.As(err, &down):
		logger.Log.WithError(err).WithField("store", down.Store).Error("store unavailable")
		writeJSONStatus(w, http.StatusServiceUnavailable, errorResponse{Error: down.Store + " store unavailable"})
	default:
		logger.Log.WithError(err).Error("request failed")
		writeJSONStatus(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
