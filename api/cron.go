package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/voyago/fulfillment/services"
)

// CronHandler lets an external scheduler trigger a retry run over HTTP. The
// shared secret protects the transport boundary only; overlapping invocations
// are already safe at the claim level.
type CronHandler struct {
	retryService *services.RetryService
	secret       string
}

func CreateCronHandler(retryService *services.RetryService, secret string) *CronHandler {
	return &CronHandler{
		retryService: retryService,
		secret:       secret,
	}
}

func (h *CronHandler) HandleRetryRun(w http.ResponseWriter, r *http.Request) {
	provided := r.Header.Get("X-Cron-Secret")
	if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
		http.Error(w, "Invalid cron secret", http.StatusUnauthorized)
		return
	}

	summary, err := h.retryService.Run(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
