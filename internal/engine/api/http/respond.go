package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/louisbranch/torchbearer.quest/internal/platform/errors"
)

type errorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	body := errorBody{
		Code:     string(code),
		Message:  err.Error(),
		Metadata: errors.MetadataOf(err),
	}
	writeJSON(w, code.HTTPStatus(), struct {
		Error errorBody `json:"error"`
	}{Error: body})
}

// decodeBody rejects malformed or oversized request payloads before they
// reach the service layer.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, errors.Wrap(errors.CodeBadRequest, "malformed request body", err))
		return false
	}
	return true
}
