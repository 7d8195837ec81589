package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/bluealbum/watchroom/internal/config"
	"github.com/bluealbum/watchroom/internal/database"
	"github.com/bluealbum/watchroom/internal/server"
	"github.com/bluealbum/watchroom/internal/session"
	"github.com/gorilla/handlers"
)

type WatchRoomApp struct {
	log            *log.Logger
	db             database.WatchRoomRepository
	mux            *http.Server
	gateway        *server.Gateway
	manager        *session.Manager
	reaper         *session.Reaper
	signingKey     []byte
	allowedOrigins []string
}

func NewWatchRoomApp(mux *http.ServeMux, logger *log.Logger, db database.WatchRoomRepository,
	gw *server.Gateway, manager *session.Manager, reaper *session.Reaper, cfg *config.Config) *WatchRoomApp {
	s := &WatchRoomApp{
		log:            logger,
		db:             db,
		gateway:        gw,
		manager:        manager,
		reaper:         reaper,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.getRooms))
	mux.Handle("DELETE /api/rooms", s.authMiddleware(s.deleteRoom))
	mux.Handle("POST /api/rooms/join", s.authMiddleware(s.joinRoom))
	mux.Handle("POST /api/rooms/leave", s.authMiddleware(s.leaveRoom))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("GET /api/admin/rooms", s.adminMiddleware(s.adminListRooms))
	mux.Handle("DELETE /api/admin/rooms", s.adminMiddleware(s.adminDeleteRoom))
	mux.Handle("POST /api/admin/cleanup", s.adminMiddleware(s.adminCleanup))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *WatchRoomApp) Start() error {
	s.log.Printf("Starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *WatchRoomApp) Shutdown(ctx context.Context) error {
	s.log.Println("Shutting down server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.log.Println("Server shutdown complete")
	return nil
}
