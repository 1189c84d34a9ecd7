package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// request limits
const (
	generalLimit = 5000
	routeLimit   = 2000
	timePeriod   = time.Minute
	// maxMessageSize bounds a single relayed message
	maxMessageSize = 1 << 20
)

const shutdownTimeout = 5 * time.Second

const ErrTooManyRoomRequests = `{"error": "too many requests to the relay rooms, please retry later"}`

// Server exposes a Hub over HTTP: messages are published with POST and rooms are
// followed over a websocket stream.
type Server struct {
	Logger     *zap.Logger  // logger
	HttpServer *http.Server // http server
	Router     chi.Router   // http router
	Hub        *Hub         // rooms with their message history
	upgrader   websocket.Upgrader
}

// New creates a relay Server with a fresh Hub
func New(logger *zap.Logger) *Server {
	s := &Server{
		Logger: logger,
		Router: chi.NewRouter(),
		Hub:    NewHub(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	RegisterRoutes(s)
	return s
}

// Run serves the relay on port until ctx is done, then shuts the server down.
func (s *Server) Run(ctx context.Context, port uint16) error {
	srv := &http.Server{Addr: fmt.Sprintf(":%v", port), Handler: s.Router, ReadHeaderTimeout: 10_000 * time.Millisecond}
	s.HttpServer = srv
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Logger.Info("✅ Relay is listening for incoming requests", zap.Uint16("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.Logger.Info("🛑 Relay is shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
