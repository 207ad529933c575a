package handlers

import (
	"net/http"
	"time"

	"github.com/patchline/api/internal/platform/httpx"
)

var startedAt = time.Now()

func health(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(startedAt).Round(time.Second).String(),
	})
}
