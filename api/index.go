package api

import (
	"encoding/json"
	"net/http"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"booking-backend/internal/app"
)

var bootstrap = sync.OnceValues(func() (*app.Runtime, error) {
	return app.Build(app.Options{
		RunMigrations: app.EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),
	})
})

// Handler is the serverless entrypoint. The runtime is built on the first
// request of a warm instance and reused afterwards; a failed bootstrap stays
// failed for the lifetime of the instance.
func Handler(w http.ResponseWriter, r *http.Request) {
	runtime, err := bootstrap()
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "service failed to start"})
		return
	}

	runtime.Handler.ServeHTTP(w, r)
}
