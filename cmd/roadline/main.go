package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/roadline-tms/roadline-tms/internal/app"
	"github.com/roadline-tms/roadline-tms/internal/audit"
	"github.com/roadline-tms/roadline-tms/internal/auth"
	"github.com/roadline-tms/roadline-tms/internal/platform/db"
	"github.com/roadline-tms/roadline-tms/internal/rbac"
	"github.com/roadline-tms/roadline-tms/internal/users"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping", slog.Any("error", err))
		os.Exit(1)
	}

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)

	rbacRepo := rbac.NewRepository(pool, auditRepo)
	rbacService := rbac.NewService(rbacRepo)
	resolver := rbac.NewResolver(pool)
	gate := rbac.Gate{Logger: logger}

	usersRepo := users.NewRepository(pool, auditRepo)
	usersService := users.NewService(usersRepo)

	tokenStore := auth.NewTokenStore(redisClient, cfg.TokenTTL)
	authService := auth.NewService(auth.NewRepository(pool), tokenStore)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		AuthHandler:    auth.NewHandler(logger, authService),
		RBACHandler:    rbac.NewHandler(logger, rbacService, gate),
		UsersHandler:   users.NewHandler(logger, usersService, gate),
		AuditHandler:   audit.NewHandler(logger, auditService, gate.Require),
		AuthMiddleware: auth.Middleware(logger, authService, resolver),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppRequestTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
