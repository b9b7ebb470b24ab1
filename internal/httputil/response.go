// Package httputil holds the JSON response helpers shared by the /debug
// handlers.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/banshee-data/biostream/internal/monitoring"
)

// WriteJSONError writes {"error": msg} with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteJSON writes data as indented JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		monitoring.Logf("failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes a 200 OK JSON response.
func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

// MethodNotAllowed writes a 405 Method Not Allowed response.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// BadRequest writes a 400 Bad Request response with the given message.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

// InternalServerError writes a 500 Internal Server Error response.
func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}

// NotFound writes a 404 Not Found response.
func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, msg)
}
