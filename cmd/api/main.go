package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"authkeep.org/internal/audit"
	"authkeep.org/internal/auth"
	"authkeep.org/internal/config"
	"authkeep.org/internal/httpapi"
	"authkeep.org/internal/obs"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("AUTHKEEP_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db *sql.DB
	if cfg.DatabaseDSN != "" {
		db, err = sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	store, rdb := buildStore(cfg, db)

	codec, err := auth.NewCodec(cfg.TokenSecret)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	var audits audit.Store
	if db != nil {
		audits = audit.NewPGStore(db)
	} else {
		audits = audit.NewMemStore()
	}

	svc := auth.NewService(store, codec, audit.NewRecorder(audits),
		auth.WithAccessTTL(cfg.AccessTokenTTL()),
		auth.WithRefreshTTL(config.RefreshTokenTTL),
	)

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, cfg.ServiceName, version, svc, audits)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	obs.Info("starting", map[string]any{
		"service":         cfg.ServiceName,
		"version":         version,
		"addr":            cfg.Addr,
		"session_backend": cfg.SessionBackend,
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	obs.Info("shutting down", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if rdb != nil {
		_ = rdb.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	obs.Info("stopped", nil)
}

// buildStore picks the backing stores from configuration. With no DSN the
// service runs fully in memory (development mode); with a DSN the session
// backend selects where the ledger lives, users stay in Postgres.
func buildStore(cfg config.Config, db *sql.DB) (auth.Store, *redis.Client) {
	if db == nil {
		obs.Warn("no database configured, using in-memory stores", nil)
		return auth.NewMemStore(), nil
	}

	base := auth.NewPGStore(db)
	switch cfg.SessionBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return auth.WithSessionBackend(base, auth.NewRedisSessionStore(rdb)), rdb
	case "memory":
		obs.Warn("memory session backend selected, sessions will not survive restarts", nil)
		return auth.WithSessionBackend(base, auth.NewMemStore().Sessions(context.Background())), nil
	default:
		return base, nil
	}
}
