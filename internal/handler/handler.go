// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/starterkit/starterkit/internal/handler/dto"
)

// Version is reported by the root info endpoint.
const Version = "1.0.0"

// Handler serves the API info document and the fallback error routes.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// InfoResponse describes the API at GET /.
type InfoResponse struct {
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// Info returns the API information document.
// GET /
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{
		Message: "Starterkit API",
		Version: Version,
		Endpoints: map[string]string{
			"POST /api/v1/users":                      "Create a user from JSON body {\"email\": \"<address>\"}",
			"GET /api/v1/users/{id}":                  "Fetch a user by id",
			"GET /api/v1/users?limit=&cursor=&email=": "List users in insertion order",
			"GET /api/string?text=<your_string>":      "Process string via query parameter",
			"POST /api/string":                        "Process string via JSON body {\"text\": \"<your_string>\"}",
			"GET /health":                             "Health check",
			"GET /healthz":                            "Liveness probe",
			"GET /readyz":                             "Readiness probe",
			"GET /metrics":                            "Prometheus metrics",
			"GET /":                                   "This information",
		},
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// isBodyTooLarge reports whether err came from the MaxBytesReader body limit.
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func writeBodyTooLarge(w http.ResponseWriter) {
	writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
}
