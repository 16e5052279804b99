package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// ErrorResponse is the standard error format for malformed requests.
// Business failures are reported inside the operation responses via
// models.ErrorDetail instead.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message})
}

// RequireMethod validates the HTTP method and returns true if it matches.
// If it doesn't match, it writes a 405 response and returns false.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// DecodeJSON reads at most maxBytes from the request body and decodes
// it into v, returning the number of bytes read. Returns false and
// writes a 400 error if reading or decoding fails.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v interface{}) (int, bool) {
	if r.Body == nil {
		WriteError(w, http.StatusBadRequest, "Request body is required")
		return 0, false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Failed to read request body: "+err.Error())
		return 0, false
	}
	if err := json.Unmarshal(body, v); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return len(body), false
	}
	return len(body), true
}
