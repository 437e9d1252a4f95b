// Package dashboard exposes the Telemetry Registry over HTTP and
// WebSocket for a browser or terminal client. It never writes to a
// Transport; it is strictly a read path.
package dashboard

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"battery-emulator/internal/telemetry"
)

// Server wraps the gin engine serving the dashboard's read-only JSON and
// WebSocket surface.
type Server struct {
	reg      *telemetry.Registry
	engine   *gin.Engine
	upgrader websocket.Upgrader
}

// New builds a Server over reg. devMode switches gin out of release mode
// for local debugging.
func New(reg *telemetry.Registry, devMode bool) *Server {
	if !devMode {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		reg:    reg,
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	engine.GET("/channels", s.handleChannels)
	engine.GET("/events", s.handleEvents)
	engine.GET("/wire", s.handleWire)
	engine.GET("/ws", s.handleWebSocket)

	return s
}

// Handler returns the server's http.Handler wrapped with CORS, suitable
// for http.Server.Handler.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	})
	return c.Handler(s.engine)
}

func (s *Server) handleChannels(c *gin.Context) {
	c.JSON(http.StatusOK, s.reg.Snapshot())
}

func (s *Server) handleEvents(c *gin.Context) {
	c.JSON(http.StatusOK, s.reg.Events())
}

func (s *Server) handleWire(c *gin.Context) {
	c.JSON(http.StatusOK, s.reg.Wire())
}

// handleWebSocket upgrades the connection and streams every new Sample
// published to the Telemetry Registry until the client disconnects or
// the request context is canceled.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch, cancel := s.reg.Subscribe(32)
	defer cancel()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(sample); err != nil {
				return
			}
		}
	}
}

// Serve blocks, serving the dashboard on addr until ctx is canceled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}
