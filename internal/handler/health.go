package handler

import (
	"net/http"
	"time"

	"thsrquery/internal/aggregator"
)

type HealthHandler struct {
	credentials  CredentialLookup
	cacheBackend string
}

func NewHealthHandler(credentials CredentialLookup, cacheBackend string) *HealthHandler {
	return &HealthHandler{
		credentials:  credentials,
		cacheBackend: cacheBackend,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready        bool      `json:"ready"`
	Mode         string    `json:"mode"`
	CacheBackend string    `json:"cacheBackend"`
	ServerTime   time.Time `json:"serverTime"`
}

// Readyz reports the data mode a request would use right now.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	creds, _ := h.credentials()

	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, http.StatusOK, ReadyResponse{
		Ready:        true,
		Mode:         aggregator.ModeFor(creds).String(),
		CacheBackend: h.cacheBackend,
		ServerTime:   time.Now(),
	})
}
