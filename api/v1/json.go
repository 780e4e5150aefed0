package v1

import (
	"encoding/json"
	"net/http"
)

// writeJSON sets the content type and status, then encodes v. Encoding
// failures after the header is written can only be recorded for the log.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		markErr(w, err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError records err for the access log and answers with a JSON body.
func writeError(w http.ResponseWriter, status int, err error) {
	markErr(w, err)
	writeJSON(w, status, errorBody{Error: err.Error()})
}
