package handler

import (
	"net/http"

	"hexanote-sync-server/internal/middleware"

	"github.com/gorilla/mux"
)

type Handlers struct {
	Auth      *AuthHandler
	Device    *DeviceHandler
	Note      *NoteHandler
	Sync      *SyncHandler
	WebSocket *WebSocketHandler
	Health    *HealthHandler
}

type RouterOptions struct {
	Tokens         middleware.TokenValidator
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
	// RateLimiter is optional.
	RateLimiter *middleware.RateLimiter
}

func NewRouter(h Handlers, opts RouterOptions) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(opts.AllowedOrigins, opts.AllowedMethods, opts.AllowedHeaders))

	if h.WebSocket != nil {
		r.HandleFunc("/ws", h.WebSocket.HandleConnection)
		r.HandleFunc("/api/v1/sync/ws", h.WebSocket.HandleConnection)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	if opts.RateLimiter != nil {
		api.Use(opts.RateLimiter.Middleware())
	}

	api.HandleFunc("/auth/login", h.Auth.Login).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(opts.Tokens))

	protected.HandleFunc("/devices", h.Device.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/devices/register", h.Device.Register).Methods("POST", "OPTIONS")

	protected.HandleFunc("/notes", h.Note.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notes", h.Note.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/tags", h.Note.Tags).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/reindex", h.Note.Reindex).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notes/{id}", h.Note.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/{id}", h.Note.Update).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/notes/{id}", h.Note.Delete).Methods("DELETE", "OPTIONS")

	protected.HandleFunc("/sync", h.Sync.ProcessSync).Methods("POST", "OPTIONS")
	protected.HandleFunc("/sync/status", h.Sync.Status).Methods("GET", "OPTIONS")
	protected.HandleFunc("/sync/conflicts", h.Sync.ListConflicts).Methods("GET", "OPTIONS")

	r.HandleFunc("/health", h.Health.Health).Methods("GET")
	r.HandleFunc("/", rootHandler).Methods("GET")

	return r
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"Hexanote Sync Server API","version":"1.0.0"}`))
}
