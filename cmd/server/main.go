package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zarshamwaleed/edulearn-chat/internal/auth"
	"github.com/zarshamwaleed/edulearn-chat/internal/cache"
	"github.com/zarshamwaleed/edulearn-chat/internal/config"
	"github.com/zarshamwaleed/edulearn-chat/internal/database"
	"github.com/zarshamwaleed/edulearn-chat/internal/domain"
	"github.com/zarshamwaleed/edulearn-chat/internal/handler"
	"github.com/zarshamwaleed/edulearn-chat/internal/hub"
	"github.com/zarshamwaleed/edulearn-chat/internal/presence"
	"github.com/zarshamwaleed/edulearn-chat/internal/repository"
	"github.com/zarshamwaleed/edulearn-chat/internal/service"
	"github.com/zarshamwaleed/edulearn-chat/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	l := log.L()
	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting chat router")

	db, err := database.New(&cfg.Database)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db, &domain.MessageModel{}, &domain.ConversationModel{}); err != nil {
		l.Fatal().Err(err).Msg("failed to run migrations")
	}

	var historyCache cache.HistoryCache
	if cfg.Cache.Enabled {
		redisCache, err := cache.NewRedisHistoryCache(cfg.Cache, "chat:history")
		if err != nil {
			l.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisCache.Close()
		historyCache = redisCache
		l.Info().Str("address", cfg.Cache.Address).Msg("history cache enabled")
	}

	messageRepo := repository.NewGormMessageRepository(db)
	convRepo := repository.NewGormConversationRepository(db)
	registry := presence.NewRegistry()

	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run()

	router := service.NewRouter(messageRepo, convRepo, registry, historyCache, cfg.Cache.TTL)

	var provider auth.Provider
	var identityMW gin.HandlerFunc
	if cfg.Auth.Secret != "" {
		jwtProvider := auth.NewJWTProvider(cfg.Auth.Secret, cfg.Auth.Issuer)
		provider = jwtProvider
		identityMW = auth.RequireIdentity(jwtProvider)
	} else {
		l.Warn().Msg("auth secret not set, requests are unauthenticated")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(log.GinMiddleware(l))

	handler.NewHTTPHandler(router).RegisterRoutes(engine, identityMW)
	handler.NewWSHandler(wsHub, router, provider, cfg.WebSocket).RegisterRoutes(engine)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info().Str("addr", server.Addr).Msg("chat router listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down chat router")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}

	wsHub.Stop()

	l.Info().Msg("chat router stopped")
}
