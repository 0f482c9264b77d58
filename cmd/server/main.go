package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tradequest/game-engine/internal/api"
	"github.com/tradequest/game-engine/internal/archive"
	"github.com/tradequest/game-engine/internal/config"
	"github.com/tradequest/game-engine/internal/game"
	"github.com/tradequest/game-engine/internal/leaderboard"
	"github.com/tradequest/game-engine/internal/market"
	"github.com/tradequest/game-engine/internal/metrics"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	var cleanup []func()

	// --- Leaderboard ---
	var board leaderboard.Board
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		board = leaderboard.NewRedisBoard(rdb)
		slog.Info("Redis leaderboard enabled")
	} else {
		slog.Warn("REDIS_URL not set, using in-memory leaderboard (rankings will not persist)")
		board = leaderboard.NewMemoryBoard()
	}

	// --- Archive ---
	var arch archive.Archive
	if cfg.DB.URL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DB.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pgArchive := archive.NewPostgresArchive(pool)
		if err := pgArchive.Init(context.Background()); err != nil {
			slog.Error("archive schema init failed", "err", err)
			os.Exit(1)
		}
		arch = pgArchive
		slog.Info("connected to PostgreSQL archive")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory archive (finished games will not persist)")
		arch = archive.NewMemoryArchive()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Game engine ---
	gameCfg := game.Config{
		StartingCash:    cfg.Game.StartingCash,
		RegistrationFee: cfg.Game.RegistrationFee,
		MaxPositions:    cfg.Game.MaxPositions,
		FeeRate:         cfg.Game.FeeRate,
		ExpandCap:       cfg.Game.ExpandCap,
		ExpandRate:      cfg.Game.ExpandRate,
		YearStep:        cfg.Game.YearStep,
		TickRule:        market.NewRandomWalk(cfg.Game.TickVolatility, time.Now().UnixNano()),
	}
	manager := game.NewManager(gameCfg, market.NewWithDefaults())

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()

	// --- HTTP service ---
	svc := api.NewService(manager, board, arch, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"game-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", svc.Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("game-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down game-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("game-engine stopped")
}
