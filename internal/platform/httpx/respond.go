// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"net/http"
)

// TraceHeader carries the ledger trace identifier on every response so
// rejected and failed requests stay correlatable in the journal.
const TraceHeader = "X-Trace-Id"

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type    string `json:"type,omitempty"`
	Title   string `json:"title"`
	Status  int    `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// ProblemCode sends a problem response carrying a typed error code and
// the originating trace identifier.
func ProblemCode(w http.ResponseWriter, status int, code, detail, traceID string) {
	if traceID != "" {
		w.Header().Set(TraceHeader, traceID)
	}
	JSON(w, status, ProblemDetail{
		Title:   http.StatusText(status),
		Status:  status,
		Detail:  detail,
		Code:    code,
		TraceID: traceID,
	})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
