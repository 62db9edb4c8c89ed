package httpx

import (
	"encoding/json"
	"net/http"
)

// apiResponse is the uniform wire envelope. Suppressed events are reported
// as successful with ignored=true; success=false is reserved for genuine
// processing faults.
type apiResponse struct {
	Success      bool   `json:"success"`
	Data         any    `json:"data,omitempty"`
	Error        string `json:"error,omitempty"`
	Ignored      bool   `json:"ignored,omitempty"`
	IgnoreReason string `json:"ignoreReason,omitempty"`
	RequestID    string `json:"requestId,omitempty"`
}

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeData sends a successful payload.
func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, apiResponse{Success: true, Data: data})
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiResponse{Success: false, Error: msg})
}

// writeRequestError sends an error message with a request correlation ID.
func writeRequestError(w http.ResponseWriter, status int, msg, requestID string) {
	writeJSON(w, status, apiResponse{Success: false, Error: msg, RequestID: requestID})
}
