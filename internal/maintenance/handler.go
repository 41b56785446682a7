package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"booking-backend/internal/observability"
)

// CleanupHandler exposes the retention sweep to an external cron scheduler,
// guarded by a shared secret. Without a configured secret the endpoint does
// not exist.
type CleanupHandler struct {
	repo             *Repository
	logger           *observability.Logger
	cronSecret       string
	lockoutRetention time.Duration
	batchSize        int
}

func NewCleanupHandler(
	repo *Repository,
	logger *observability.Logger,
	cronSecret string,
	lockoutRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	return &CleanupHandler{
		repo:             repo,
		logger:           logger,
		cronSecret:       strings.TrimSpace(cronSecret),
		lockoutRetention: lockoutRetention,
		batchSize:        batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	result, err := h.repo.CleanupExpiredSecurityState(r.Context(), h.lockoutRetention, h.batchSize)
	if err != nil {
		h.logger.Error("security_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("security_cleanup_completed", map[string]any{
		"deleted_revoked_tokens": result.DeletedRevokedTokens,
		"deleted_revoked_users":  result.DeletedRevokedUsers,
		"deleted_lockouts":       result.DeletedLockouts,
		"deleted_sessions":       result.DeletedSessions,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
