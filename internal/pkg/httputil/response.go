package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// Stable machine-readable error codes. The dashboard branches on these
// instead of parsing the message text.
const (
	CodeBadRequest        = "bad_request"
	CodeWorkspaceRequired = "workspace_id_required"
	CodeNotFound          = "not_found"
	CodeInternal          = "internal"
)

// ErrorResponse is the envelope for every API error. Success responses
// carry the domain payload (run results, health reports, followup stats)
// unwrapped.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// JSON writes a JSON response with the given status code. An encode
// failure is logged; at that point the status line is already out.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[httputil] encode failed: %v", err)
	}
}

// OK writes a 200 response with the given data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorResponse{Error: message, Code: code})
}

// BadRequest writes a 400 error.
func BadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, CodeBadRequest, message)
}

// WorkspaceRequired writes the 400 returned by every workspace-scoped
// route when the path parameter is empty.
func WorkspaceRequired(w http.ResponseWriter) {
	writeError(w, http.StatusBadRequest, CodeWorkspaceRequired, "workspace id required")
}

// NotFound writes a 404 error.
func NotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, CodeNotFound, message)
}

// InternalError writes a 500 error. The real error is logged and the
// client gets a generic message; repository and collaborator failures
// must not leak connection strings or provider responses.
func InternalError(w http.ResponseWriter, err error) {
	log.Printf("[httputil] internal error: %v", err)
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
}

// Decode reads the JSON request body into dst, writing a 400 and
// returning false when it does not parse. An empty body is not an
// error: callers treat it as all-defaults.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid request body")
		return false
	}
	return true
}
