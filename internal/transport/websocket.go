package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/avvvet/skillbuddy-chat/internal/config"
	"github.com/avvvet/skillbuddy-chat/internal/handlers"
	"github.com/avvvet/skillbuddy-chat/internal/memory"
	"github.com/avvvet/skillbuddy-chat/internal/models"
)

// HistoryReader lists a session's stored turns.
type HistoryReader interface {
	Messages(sessionID string) ([]memory.Message, error)
}

type historyResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []memory.Message `json:"messages"`
}

// Server exposes the chat over HTTP and a WebSocket at /ws.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	dispatcher *Dispatcher
	chat       ChatService
	history    HistoryReader
	upgrader   websocket.Upgrader
	origins    []string

	baseCtx context.Context
	cancel  context.CancelFunc

	mu    sync.Mutex
	conns map[*websocket.Conn]string
}

// NewServer builds the routes. It fails on a CORS origin that is not a valid
// scheme://host[:port].
func NewServer(cfg *config.Config, chat ChatService, history HistoryReader) (*Server, error) {
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		echo:       echo.New(),
		dispatcher: NewDispatcher(chat),
		chat:       chat,
		history:    history,
		origins:    cfg.CORSOrigins,
		baseCtx:    baseCtx,
		cancel:     cancel,
		conns:      make(map[*websocket.Conn]string),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	if len(cfg.CORSOrigins) > 0 {
		cors, err := corsMiddleware(cfg.CORSOrigins)
		if err != nil {
			return nil, fmt.Errorf("invalid CORS_ORIGINS: %w", err)
		}
		s.echo.Use(cors)
	}

	s.echo.GET("/health", s.health)
	s.echo.POST("/session/new", s.newSession)
	s.echo.GET("/session/:id/history", s.sessionHistory)
	s.echo.GET("/ws", echo.WrapHandler(http.HandlerFunc(s.serveWebSocket)))

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes open WebSocket connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	return s.httpServer.Shutdown(ctx)
}

// health reports unavailable when the session store cannot be reached.
func (s *Server) health(c *echo.Context) error {
	if pinger, ok := s.history.(interface{ Ping(context.Context) error }); ok {
		if err := pinger.Ping(c.Request().Context()); err != nil {
			slog.Warn("health check failed", "err", err)
			return c.JSON(http.StatusServiceUnavailable, models.HealthResponse{Status: "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, models.HealthResponse{Status: "ok"})
}

func (s *Server) newSession(c *echo.Context) error {
	return c.JSON(http.StatusOK, models.NewSessionResponse{SessionID: s.chat.NewSession()})
}

func (s *Server) sessionHistory(c *echo.Context) error {
	sessionID := c.Param("id")
	msgs, err := s.history.Messages(sessionID)
	if errors.Is(err, memory.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, historyResponse{SessionID: sessionID, Messages: msgs})
}

// serveWebSocket handles one client connection. Messages are processed one
// at a time: a turn runs to completion before the next message is read.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	connID := uuid.NewString()
	s.track(conn, connID)
	defer s.untrack(conn)

	slog.Info("client connected", "conn", connID, "remote", r.RemoteAddr)

	emit := handlers.EmitterFunc(func(ctx context.Context, msg models.Outbound) error {
		return conn.WriteJSON(msg)
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.Warn("client connection lost", "conn", connID, "err", err)
			} else {
				slog.Info("client disconnected", "conn", connID)
			}
			return
		}

		if err := s.dispatcher.Dispatch(s.baseCtx, data, emit); err != nil {
			slog.Warn("failed to write to client", "conn", connID, "err", err)
			return
		}
	}
}

func (s *Server) track(conn *websocket.Conn, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = id
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// checkOrigin admits non-browser clients (no Origin header) and the
// configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.allowedOrigin(origin)
}

func (s *Server) allowedOrigin(origin string) bool {
	return slices.Contains(s.origins, "*") || slices.Contains(s.origins, origin)
}

// corsMiddleware builds the CORS policy for the configured origins. A "*"
// entry admits every origin without credentials.
func corsMiddleware(origins []string) (echo.MiddlewareFunc, error) {
	if slices.Contains(origins, "*") {
		return middleware.CORSConfig{AllowOrigins: []string{"*"}}.ToMiddleware()
	}
	return middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowCredentials: true,
	}.ToMiddleware()
}
