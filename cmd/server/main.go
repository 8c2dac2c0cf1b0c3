package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/acme/autocert"

	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/config"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/directory"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/events"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/handlers"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/notify"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/reaper"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/rooms"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/sessions"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/signaling"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/store"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/transport"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/turn"
)

const appVersion = "1.0.0"

func main() {
	httpOnly := flag.Bool("http-only", false, "Serve plain HTTP (no autocert)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*httpOnly)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.EnsureVAPIDKeys(logger); err != nil {
		logger.Error("VAPID setup failed", "error", err)
		os.Exit(1)
	}

	logger.Info("call server starting", "version", appVersion)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	turnServer, err := turn.Start(cfg.TURNPort, cfg.TURNRealm, logger)
	if err != nil {
		logger.Error("failed to start TURN server", "error", err)
		os.Exit(1)
	}
	defer turnServer.Close()

	hub := transport.NewHub(logger)
	users := directory.NewUsers(st)
	groups := directory.NewGroups(st)
	gateway := notify.NewGateway(st, notify.VAPID{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subject:    cfg.VAPIDSubject,
	}, logger)

	tracker := sessions.NewTracker(st, logger)
	broadcaster := events.NewBroadcaster(hub, logger)
	registry := rooms.NewRegistry(st, tracker, broadcaster, groups, users, rooms.DefaultJoinPolicy(), logger)
	relay := signaling.NewRelay(registry, users, hub, gateway, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := reaper.New(st, tracker, cfg.ReaperInterval, cfg.RoomRetention, logger)
	go sweeper.Run(ctx)

	h := handlers.New(cfg, registry, relay, hub, turnServer, st, logger)
	router := setupRouter(h, cfg, logger)

	startServer(ctx, router, cfg, logger)
}

func setupRouter(h *handlers.Handlers, cfg *config.Config, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	api := router.Group("/api")
	api.GET("/turn-config", h.GetTURNConfig)
	api.GET("/push/vapid-key", h.GetVAPIDPublicKey)

	authed := api.Group("")
	authed.Use(h.AuthRequired())
	{
		authed.GET("/ws", h.HandleWebSocket)

		authed.POST("/calls", h.CreateRoom)
		authed.GET("/calls/:room_id", h.GetRoom)
		authed.GET("/calls/:room_id/stats", h.GetStatistics)
		authed.POST("/calls/:room_id/join", h.JoinRoom)
		authed.POST("/calls/:room_id/leave", h.LeaveRoom)
		authed.POST("/calls/:room_id/end", h.EndRoom)
		authed.POST("/calls/:room_id/cancel", h.CancelRoom)
		authed.POST("/calls/:room_id/participants", h.AddParticipant)
		authed.DELETE("/calls/:room_id/participants/:user_id", h.RemoveParticipant)

		authed.POST("/calls/:room_id/connection-state", h.UpdateConnectionState)
		authed.POST("/calls/:room_id/media-state", h.UpdateMediaState)

		authed.POST("/calls/:room_id/signal/offer", h.SendOffer)
		authed.POST("/calls/:room_id/signal/answer", h.SendAnswer)
		authed.POST("/calls/:room_id/signal/ice", h.SendICECandidate)
		authed.POST("/calls/:room_id/broadcast", h.BroadcastToRoom)
		authed.POST("/calls/:room_id/invite", h.SendCallInvitation)
		authed.POST("/calls/:room_id/respond", h.SendCallResponse)

		authed.POST("/push/subscribe", h.SubscribePush)
		authed.POST("/push/unsubscribe", h.UnsubscribePush)
	}

	return router
}

func startServer(ctx context.Context, router *gin.Engine, cfg *config.Config, logger *slog.Logger) {
	if cfg.HTTPOnly {
		srv := &http.Server{
			Addr:         ":" + cfg.HTTPPort,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go shutdownOnDone(ctx, srv, logger)

		logger.Info("HTTP server starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
		return
	}

	certsDir := certsDirectory()
	if err := os.MkdirAll(certsDir, 0700); err != nil {
		logger.Error("failed to create certs directory", "error", err)
		return
	}

	domain := normalizeDomain(cfg.Domain)
	manager := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		HostPolicy: func(ctx context.Context, host string) error {
			if normalizeDomain(host) != domain {
				return fmt.Errorf("host %q not configured (expected %q)", host, domain)
			}
			return nil
		},
		Cache: autocert.DirCache(certsDir),
	}

	errorLog := newServerErrorLog(logger)

	httpSrv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/.well-known/acme-challenge/") {
				manager.HTTPHandler(nil).ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, "https://"+r.Host+r.RequestURI, http.StatusMovedPermanently)
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		ErrorLog:     errorLog,
	}
	go func() {
		logger.Info("HTTP server (ACME challenge & redirects) starting", "port", cfg.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP redirect server failed", "error", err)
		}
	}()

	httpsSrv := &http.Server{
		Addr:         ":" + cfg.HTTPSPort,
		Handler:      router,
		TLSConfig:    manager.TLSConfig(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     errorLog,
	}
	go shutdownOnDone(ctx, httpsSrv, logger)

	logger.Info("HTTPS server starting", "port", cfg.HTTPSPort, "domain", domain)
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("HTTPS server failed", "error", err)
	}
}

func shutdownOnDone(ctx context.Context, srv *http.Server, logger *slog.Logger) {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", "error", err)
	}
}

func certsDirectory() string {
	execPath, err := os.Executable()
	if err != nil {
		return "certs"
	}
	return filepath.Join(filepath.Dir(execPath), "certs")
}

func normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	return strings.TrimPrefix(domain, "www.")
}
