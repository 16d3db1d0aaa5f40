package api

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON body written for every request rejected by dbgate
// itself: {"Error": "<message>"}.
type ErrorResponse struct {
	Error string `json:"Error"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes an ErrorResponse with the given status code.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}
