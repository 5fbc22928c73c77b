package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"autotrader/apps/autotrader/internal/model"
)

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// responder is embedded by every handler.
type responder struct {
	logger *zap.Logger
}

// writeJSONResponse writes a JSON response
func (h responder) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	if err := writeJSON(w, statusCode, data); err != nil {
		h.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// writeErrorResponse writes an error response
func (h responder) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.writeJSONResponse(w, statusCode, ErrorResponse{Error: errorCode, Message: message})
}

// writeValidationError reports a model.ValidationError as 400 with the offending field.
func (h responder) writeValidationError(w http.ResponseWriter, err error) {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		h.writeJSONResponse(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: ve.Error(), Field: ve.Field})
		return
	}
	h.writeErrorResponse(w, http.StatusBadRequest, "validation_error", err.Error())
}

func (h responder) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return false
	}
	return true
}
