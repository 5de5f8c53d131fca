package handler

import (
	"encoding/json"
	"net/http"

	"healthboard/pkg/logger"
)

// ErrorResponse represents an error response body
type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// errorEnvelope wraps an error for the standard failure shape.
type errorEnvelope struct {
	Success bool           `json:"success"`
	Error   *ErrorResponse `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body interface{}, log *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

// writeError writes a standard error envelope.
func writeError(w http.ResponseWriter, status int, errType, message string, log *logger.Logger) {
	writeJSON(w, status, errorEnvelope{
		Success: false,
		Error:   &ErrorResponse{Type: errType, Message: message},
	}, log)
}
