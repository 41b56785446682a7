package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"booking-backend/internal/auth"
	"booking-backend/internal/booking"
	"booking-backend/internal/cache"
	"booking-backend/internal/db"
	"booking-backend/internal/lockout"
	"booking-backend/internal/maintenance"
	"booking-backend/internal/observability"
	"booking-backend/internal/session"
	"booking-backend/internal/token"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		applied, err := db.RunMigrations(context.Background(), database)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		if applied > 0 {
			logger.Info("migrations_applied", map[string]any{"count": applied})
		}
	}

	var fastTier cache.Cache
	var closeCache func() error
	if redisURL := strings.TrimSpace(os.Getenv("REDIS_URL")); redisURL != "" {
		redisCache, err := cache.NewRedis(redisURL, envOrDefault("REDIS_KEY_PREFIX", "booking:"))
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("init redis cache: %w", err)
		}
		fastTier = redisCache
		closeCache = redisCache.Close
		logger.Info("cache_tier", map[string]any{"backend": "redis"})
	} else {
		fastTier = cache.NewMemory()
		closeCache = func() error { return nil }
	}

	recent := token.NewRecentSet(
		envIntOrDefault("REVOKED_SET_HIGH_WATER", token.DefaultHighWater),
		envIntOrDefault("REVOKED_SET_TARGET", token.DefaultTargetSize),
	)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go recent.Run(sweepCtx, envMinutesOrDefault("REVOKED_SET_SWEEP_MINUTES", 60))

	storeTimeout := envSecondsOrDefault("STORE_TIMEOUT_SECONDS", 3)

	tokenService := token.NewService(token.NewRepository(database), fastTier, recent, logger).
		WithDefaultTTL(envDaysOrDefault("TOKEN_REVOCATION_TTL_DAYS", 30)).
		WithStoreTimeout(storeTimeout)

	guard := lockout.NewGuard(lockout.NewRepository(database), fastTier, logger).
		WithConfig(
			envIntOrDefault("LOGIN_MAX_ATTEMPTS", lockout.DefaultThreshold),
			envMinutesOrDefault("LOGIN_LOCK_MINUTES", 30),
		).
		WithStoreTimeout(storeTimeout)

	sessions := session.NewRegistry(session.NewRepository(database), logger).
		WithMaxAge(envDaysOrDefault("SESSION_MAX_AGE_DAYS", 30)).
		WithStoreTimeout(storeTimeout)

	userRepo := auth.NewRepository(database)
	authService := auth.NewService(userRepo, tokenService, guard, sessions, jwtSecret).
		WithAccessTTL(envHoursOrDefault("ACCESS_TOKEN_TTL_HOURS", 12))
	authHandler := auth.NewHandler(authService, sessions)

	if username, password := os.Getenv("ADMIN_USERNAME"), os.Getenv("ADMIN_PASSWORD"); username != "" && password != "" {
		if err := userRepo.EnsureAdmin(context.Background(), strings.ToLower(strings.TrimSpace(username)), password); err != nil {
			stopSweeper()
			_ = database.Close()
			return nil, fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	bookingRepo := booking.NewRepository(database)
	bookingHandler := booking.NewHandler(bookingRepo)

	cleanupHandler := maintenance.NewCleanupHandler(
		maintenance.NewRepository(database),
		logger,
		os.Getenv("CRON_SECRET"),
		envDaysOrDefault("LOCKOUT_RETENTION_DAYS", 30),
		envIntOrDefault("SECURITY_CLEANUP_BATCH_SIZE", 500),
	)

	loginLimiter := auth.NewLoginRateLimiter(
		envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	authed := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(authService, h)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /auth/logout", authed(authHandler.Logout))
	mux.Handle("GET /auth/sessions", authed(authHandler.ListSessions))
	mux.Handle("DELETE /auth/sessions/{id}", authed(authHandler.RevokeSession))
	mux.Handle("GET /bookings", authed(bookingHandler.ListBookings))
	mux.Handle("POST /bookings", authed(bookingHandler.CreateBooking))
	mux.Handle("DELETE /bookings/{id}", authed(bookingHandler.CancelBooking))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			stopSweeper()
			observability.FlushSentry()
			_ = closeCache()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
