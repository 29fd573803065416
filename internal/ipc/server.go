package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Handler processes one command message and returns the response.
type Handler interface {
	HandleMessage(ctx context.Context, msg *Message) (*Message, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, msg *Message) (*Message, error) {
	return f(ctx, msg)
}

// ServerConfig configures the control socket.
type ServerConfig struct {
	SocketPath string

	// MaxClients bounds concurrent shell connections.
	MaxClients int

	// RequestsPerSecond rate-limits each client; a misbehaving shell
	// gets throttled instead of starving the daemon.
	RequestsPerSecond float64
}

// DefaultServerConfig returns the standard server settings.
func DefaultServerConfig(socketPath string) ServerConfig {
	return ServerConfig{
		SocketPath:        socketPath,
		MaxClients:        8,
		RequestsPerSecond: 20,
	}
}

// client is one connected shell. writeMu serializes frames from the
// request/response path and the broadcast path onto the one connection.
type client struct {
	conn    net.Conn
	limiter *rate.Limiter
	writeMu sync.Mutex

	mu         sync.Mutex
	subscribed map[EventType]bool
	allEvents  bool
}

// write sends one frame, optionally bounded by a deadline.
func (c *client) write(msg *Message, deadline time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(deadline))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return WriteMessage(c.conn, msg)
}

// Server accepts shell connections on a Unix domain socket.
type Server struct {
	cfg     ServerConfig
	handler Handler
	log     *slog.Logger

	listener net.Listener

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	wg sync.WaitGroup
}

// NewServer prepares (but does not start) the server.
func NewServer(cfg ServerConfig, handler Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		handler: handler,
		log:     logger.With("component", "ipc"),
		clients: make(map[*client]struct{}),
	}
}

// Start begins listening on the socket.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0700); err != nil {
		return fmt.Errorf("ipc: create socket directory: %w", err)
	}
	// Remove a stale socket from an earlier unclean exit; the PID
	// lockfile already guarantees single instancing.
	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ipc: remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("ipc: listen on %s: %w", s.cfg.SocketPath, err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("ipc: restrict socket permissions: %w", err)
	}

	s.listener = listener
	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info("control socket listening", "path", s.cfg.SocketPath)
	return nil
}

// Stop closes the listener and all client connections.
func (s *Server) Stop() {
	s.mu.Lock()
	s.closed = true
	listener := s.listener
	conns := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	for _, c := range conns {
		c.conn.Close()
	}
	s.wg.Wait()
	os.Remove(s.cfg.SocketPath)
}

// SocketPath returns the bound socket path.
func (s *Server) SocketPath() string { return s.cfg.SocketPath }

// ClientCount returns the number of connected shells.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Broadcast sends an event to every subscribed client. Send failures
// drop the client; a wedged shell must not block the daemon.
func (s *Server) Broadcast(event *Event) {
	msg, err := NewMessage(MsgEvent, 0, event)
	if err != nil {
		s.log.Warn("encoding event failed", "type", event.Type, "error", err)
		return
	}

	s.mu.Lock()
	conns := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if !c.wants(event.Type) {
			continue
		}
		if err := c.write(msg, 2*time.Second); err != nil {
			s.dropClient(c)
		}
	}
}

func (c *client) wants(eventType EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allEvents || c.subscribed[eventType]
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}

		s.mu.Lock()
		if len(s.clients) >= s.cfg.MaxClients {
			s.mu.Unlock()
			s.log.Warn("rejecting client, connection limit reached")
			conn.Close()
			continue
		}
		c := &client{
			conn:       conn,
			limiter:    rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), int(s.cfg.RequestsPerSecond)),
			subscribed: make(map[EventType]bool),
		}
		s.clients[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveClient(c)
	}
}

func (s *Server) dropClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.conn.Close()
}

func (s *Server) serveClient(c *client) {
	defer s.wg.Done()
	defer s.dropClient(c)

	for {
		msg, err := ReadMessage(c.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Debug("client read failed", "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			s.sendError(c, msg.Header.RequestID, "rate limit exceeded")
			continue
		}

		resp, err := s.processMessage(c, msg)
		if err != nil {
			s.sendError(c, msg.Header.RequestID, err.Error())
			continue
		}
		if resp == nil {
			continue
		}
		resp.Header.RequestID = msg.Header.RequestID
		if err := c.write(resp, 0); err != nil {
			return
		}
	}
}

func (s *Server) processMessage(c *client, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgPing:
		return NewMessage(MsgPong, msg.Header.RequestID, nil)

	case MsgHandshake:
		var req HandshakeRequest
		if err := msg.Decode(&req); err != nil {
			return nil, err
		}
		return NewMessage(MsgHandshakeAck, msg.Header.RequestID, HandshakeAck{
			ServerVersion: ProtocolVersion,
		})

	case MsgSubscribe:
		var req SubscribeRequest
		if err := msg.Decode(&req); err != nil {
			return nil, err
		}
		c.mu.Lock()
		if len(req.Events) == 0 {
			c.allEvents = true
		}
		for _, ev := range req.Events {
			c.subscribed[ev] = true
		}
		c.mu.Unlock()
		return NewMessage(MsgSubscribeResp, msg.Header.RequestID, nil)

	default:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.handler.HandleMessage(ctx, msg)
	}
}

func (s *Server) sendError(c *client, requestID uint32, text string) {
	msg, err := NewMessage(MsgError, requestID, ErrorResponse{Error: text})
	if err != nil {
		return
	}
	c.write(msg, 0)
}
