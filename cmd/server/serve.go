package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"hexanote-sync-server/internal/config"
	"hexanote-sync-server/internal/handler"
	"hexanote-sync-server/internal/middleware"
	"hexanote-sync-server/internal/repository"
	"hexanote-sync-server/internal/service"
	"hexanote-sync-server/internal/websocket"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	closeLog := setupLogging(cfg.Logging)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	ix := newIndexer(cfg)
	go ix.Run(ctx)
	defer ix.Close()

	noteRepo := repository.WithCommitNotifier(st.notes, ix)

	wsManager := websocket.NewManager(websocket.Options{
		MaxConnPerDevice: cfg.WebSocket.MaxConnPerDevice,
		SendBuffer:       cfg.WebSocket.SendBuffer,
		MaxMissedPushes:  cfg.WebSocket.MaxMissedPushes,
		MaxMessageSize:   cfg.WebSocket.MaxMessageSize,
		WriteWait:        cfg.WebSocket.WriteWait,
		PongWait:         cfg.WebSocket.PongWait,
		PingPeriod:       cfg.WebSocket.PingPeriod,
	})
	go wsManager.Run(ctx)

	authService, err := service.NewAuthService(cfg.Auth.Password, cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration)
	if err != nil {
		return fmt.Errorf("failed to set up authentication: %w", err)
	}
	deviceService := service.NewDeviceService(st.devices, wsManager)
	conflictService := service.NewConflictService(st.conflicts)
	broadcaster := service.NewBroadcaster(wsManager, deviceService)
	syncService := service.NewSyncService(noteRepo, deviceService, conflictService, broadcaster, service.SyncOptions{
		BatchTimeout:  cfg.Sync.BatchTimeout,
		MaxOperations: cfg.Sync.MaxOperations,
		CommitSkew:    cfg.Sync.CommitSkew,
	})
	noteService := service.NewNoteService(noteRepo, deviceService, conflictService, broadcaster)
	noteService.SetIndexer(ix)

	wsManager.SetMessageHandler(handler.NewWebSocketMessageHandler(syncService))

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	}

	router := handler.NewRouter(handler.Handlers{
		Auth:   handler.NewAuthHandler(authService),
		Device: handler.NewDeviceHandler(deviceService, authService),
		Note:   handler.NewNoteHandler(noteService),
		Sync:   handler.NewSyncHandler(syncService, conflictService),
		WebSocket: handler.NewWebSocketHandler(wsManager, deviceService, authService,
			cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize),
		Health: handler.NewHealthHandler(deviceService),
	}, handler.RouterOptions{
		Tokens:         authService,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
		RateLimiter:    limiter,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	// WriteTimeout must outlast a full sync batch.
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Sync.BatchTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting Hexanote Sync Server on %s (env: %s, storage: %s)", addr, cfg.Server.Env, cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server stopped gracefully")
	return nil
}
