package http

import (
	"encoding/json"
	"net/http"

	"smart-stick/tracker/internal/domain"
	"smart-stick/tracker/internal/log"
)

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string         `json:"message"`
	Command domain.Command `json:"command,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "Failed to write response body")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageBody{Message: msg})
}
