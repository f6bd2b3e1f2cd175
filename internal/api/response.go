package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/evscmms/assistant/internal/log"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON encodes into a buffer first so headers are only sent after
// encoding succeeds; an encoding failure still gets a clean 500.
func writeJSON(w http.ResponseWriter, status int, data any, logger log.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("encoding JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("writing response body", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, logger log.Logger) {
	writeJSON(w, status, errorBody{Error: code, Message: message}, logger)
}
