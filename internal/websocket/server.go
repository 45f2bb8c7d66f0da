package websocket

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"taskpilot/internal/observability"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // loopback only
	},
}

// Options configures a Server.
type Options struct {
	// Addr defaults to 127.0.0.1:0.
	Addr    string
	AuthKey string
	Logger  *slog.Logger
	Metrics *observability.Metrics
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
}

// Server serves /ws, /health and optionally /metrics.
type Server struct {
	opts       Options
	port       int
	router     *Router
	logger     *slog.Logger
	metrics    *observability.Metrics
	clients    map[string]*Client
	clientsMu  sync.RWMutex
	httpServer *http.Server
	ctx        context.Context
}

func NewServer(app interface{}, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		opts:    opts,
		router:  NewRouter(app),
		logger:  logger.With("component", "websocket"),
		metrics: opts.Metrics,
		clients: make(map[string]*Client),
		ctx:     context.Background(),
	}
}

// Handler returns the HTTP routes, for embedding or tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if s.opts.MetricsHandler != nil {
		mux.Handle("/metrics", s.opts.MetricsHandler)
	}
	return mux
}

// Start listens and serves in the background. It returns the bound port.
// RPC calls receive ctx.
func (s *Server) Start(ctx context.Context) (int, error) {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return 0, fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}

	s.ctx = ctx
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.httpServer = &http.Server{Handler: s.Handler()}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("websocket server stopped", "error", err)
		}
	}()

	s.logger.Info("websocket server listening", "port", s.port)
	return s.port, nil
}

// Stop closes every client and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.clientsMu.Lock()
	for _, client := range s.clients {
		client.Close()
	}
	s.clientsMu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) authorized(r *http.Request) bool {
	if s.opts.AuthKey == "" {
		return true
	}
	got := r.Header.Get("X-Auth-Key")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.AuthKey)) == 1
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(uuid.New().String(), conn)

	s.clientsMu.Lock()
	s.clients[client.ID] = client
	s.clientsMu.Unlock()
	s.metrics.ClientConnected()
	s.logger.Info("client connected", "client", client.ID)

	go client.WritePump()
	s.readPump(client)
}

func (s *Server) readPump(client *Client) {
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		s.clientsMu.Unlock()
		client.Close()
		s.metrics.ClientDisconnected()
		s.logger.Info("client disconnected", "client", client.ID)
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "client", client.ID, "error", err)
			}
			return
		}
		s.handleMessage(client, message)
	}
}

func (s *Server) handleMessage(client *Client, message []byte) {
	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		s.logger.Warn("invalid message format", "client", client.ID, "error", err)
		return
	}

	if msg.Kind == KindRequest && msg.Request != nil {
		// Calls run concurrently; Cancel must not queue behind SendMessage.
		go s.handleRPCRequest(client, msg.Request)
	}
}

func (s *Server) handleRPCRequest(client *Client, req *RPCRequest) {
	result, err := s.router.Call(s.ctx, req.Method, req.Params)

	var errMsg string
	if err != nil {
		errMsg = err.Error()
		s.logger.Debug("rpc failed", "method", req.Method, "error", err)
	}

	if err := client.SendResponse(req.ID, result, errMsg); err != nil {
		s.logger.Warn("failed to send response", "client", client.ID, "method", req.Method, "error", err)
	}
}

// BroadcastEvent sends an event to every connected client.
func (s *Server) BroadcastEvent(eventType string, payload interface{}) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, client := range s.clients {
		if err := client.SendEvent(eventType, payload); err != nil {
			s.logger.Debug("dropped event", "client", client.ID, "event", eventType, "error", err)
		}
	}
}

func (s *Server) GetPort() int {
	return s.port
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
