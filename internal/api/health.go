package api

import (
	"net/http"

	"github.com/evscmms/assistant/internal/log"
)

// health serves liveness checks.
func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, log.NewNop())
}
