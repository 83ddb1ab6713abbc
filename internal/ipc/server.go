package ipc

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"smartclip/internal/logging"
	"smartclip/internal/notify"
)

// Handler answers application requests. Protocol housekeeping (ping,
// handshake, authentication, subscriptions) never reaches it.
type Handler interface {
	HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, client *Client, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	return f(ctx, client, msg)
}

// Client is one accepted connection.
type Client struct {
	ID          string
	ConnectedAt time.Time

	conn    net.Conn
	writeMu sync.Mutex

	mu            sync.Mutex
	name          string
	version       string
	authenticated bool
	permission    PermissionLevel
	lastActivity  time.Time
	subscribed    map[EventType]bool
}

// Name is the name the client gave in its handshake.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Permission is the client's current access level.
func (c *Client) Permission() PermissionLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permission
}

func (c *Client) wants(t EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed[t]
}

// ServerConfig configures the IPC server.
type ServerConfig struct {
	// SocketPath is the Unix socket path, or the pipe name on Windows.
	SocketPath  string
	Version     string
	Permissions os.FileMode

	// ReadTimeout is how long a connection may stay idle before the server
	// pings it.
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxConnections int
	Logger         *logging.Logger
}

// DefaultServerConfig returns the defaults for socketPath.
func DefaultServerConfig(socketPath string) ServerConfig {
	return ServerConfig{
		SocketPath:     socketPath,
		Version:        "dev",
		Permissions:    0600,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxConnections: 16,
	}
}

// withDefaults fills zero fields from DefaultServerConfig.
func (c ServerConfig) withDefaults() ServerConfig {
	def := DefaultServerConfig(c.SocketPath)
	if c.Permissions == 0 {
		c.Permissions = def.Permissions
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = def.MaxConnections
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
	return c
}

// shutdownGrace bounds how long Stop waits for connections to drain.
const shutdownGrace = 5 * time.Second

// Server accepts local connections and dispatches their requests.
type Server struct {
	cfg     ServerConfig
	handler Handler
	log     *logging.Logger

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  atomic.Bool
	seq      atomic.Uint32

	mu      sync.RWMutex
	clients map[string]*Client

	events chan *Event

	builtin map[MessageType]func(*Client, *Message) (*Message, error)
}

// NewServer creates a server. It does not listen until Start.
func NewServer(cfg ServerConfig, handler Handler) (*Server, error) {
	if cfg.SocketPath == "" {
		return nil, errors.New("socket path is required")
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		handler: handler,
		log:     cfg.Logger.WithComponent("ipc"),
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[string]*Client),
		events:  make(chan *Event, 100),
	}
	s.builtin = map[MessageType]func(*Client, *Message) (*Message, error){
		MsgPing:         s.pong,
		MsgPong:         func(*Client, *Message) (*Message, error) { return nil, nil },
		MsgHandshake:    s.handshake,
		MsgAuthenticate: s.authenticate,
		MsgSubscribe:    s.subscribe,
		MsgUnsubscribe:  s.unsubscribe,
	}
	return s, nil
}

// Start listens on the socket and begins accepting connections.
func (s *Server) Start() error {
	l, err := listen(s.cfg.SocketPath, s.cfg.Permissions)
	if err != nil {
		return err
	}
	s.listener = l
	s.running.Store(true)

	s.wg.Add(2)
	go s.fanOut()
	go s.accept()

	s.log.Info("ipc server listening", "address", l.Addr().String())
	return nil
}

// Stop tells subscribers the daemon is going away, closes every connection
// and waits for handlers to return.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.deliver(&Event{Type: EventDaemonShutdown, Timestamp: time.Now()})

	s.cancel()
	s.listener.Close()
	s.mu.Lock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(shutdownGrace):
		s.log.Warn("ipc server shutdown timed out")
	}

	cleanupListener(s.cfg.SocketPath)
	return nil
}

// SocketPath returns the address the server listens on.
func (s *Server) SocketPath() string { return s.cfg.SocketPath }

// ClientCount returns the number of open connections.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast queues an event for subscribers. Events are dropped rather than
// blocking the caller when the queue is full.
func (s *Server) Broadcast(e *Event) {
	if !s.running.Load() {
		return
	}
	select {
	case s.events <- e:
	default:
		s.log.Debug("event queue full, dropping event", "type", e.Type.String())
	}
}

// Notify implements notify.Sink.
func (s *Server) Notify(e notify.Event) {
	s.Broadcast(&Event{
		Type:      EventHistoryChanged,
		Timestamp: e.At,
		Reason:    string(e.Reason),
		ClipID:    e.ClipID,
	})
}

func (s *Server) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		c, ok := s.admit(conn)
		if !ok {
			s.log.Warn("connection limit reached", "max_connections", s.cfg.MaxConnections)
			conn.Close()
			continue
		}
		s.wg.Add(1)
		go s.serve(c)
	}
}

// admit registers conn unless the connection limit is reached. New clients
// are read-only until they authenticate.
func (s *Server) admit(conn net.Conn) (*Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) >= s.cfg.MaxConnections {
		return nil, false
	}
	now := time.Now()
	c := &Client{
		ID:           uuid.NewString(),
		ConnectedAt:  now,
		conn:         conn,
		permission:   PermReadOnly,
		lastActivity: now,
	}
	s.clients[c.ID] = c
	return c, true
}

func (s *Server) serve(c *Client) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.ID)
		s.mu.Unlock()
		c.conn.Close()
	}()

	log := s.log.With("client_id", c.ID)
	for s.ctx.Err() == nil {
		c.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		msg, err := ReadMessage(c.conn)
		var ne net.Error
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			return
		case errors.As(err, &ne) && ne.Timeout():
			if s.send(c, NewMessage(MsgPing, s.seq.Add(1), nil)) != nil {
				return
			}
			continue
		default:
			log.Debug("read failed", "error", err)
			return
		}

		c.mu.Lock()
		c.lastActivity = time.Now()
		c.mu.Unlock()

		resp, err := s.dispatch(c, msg)
		if err != nil {
			log.Error("handler failed", "type", msg.Header.Type, "error", err)
			resp = NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error())
		}
		if resp != nil && s.send(c, resp) != nil {
			return
		}
	}
}

// dispatch answers protocol messages itself and passes the rest to the
// handler. Status is open to every client; other requests need an
// authenticated client, and mutating ones need write access.
func (s *Server) dispatch(c *Client, msg *Message) (*Message, error) {
	id := msg.Header.RequestID
	if fn, ok := s.builtin[msg.Header.Type]; ok {
		return fn(c, msg)
	}

	if msg.Header.Type != MsgStatusRequest {
		c.mu.Lock()
		authed, perm := c.authenticated, c.permission
		c.mu.Unlock()
		if !authed {
			return NewErrorMessage(id, ErrPermissionDenied, "not authenticated"), nil
		}
		if mutating[msg.Header.Type] && perm < PermReadWrite {
			return NewErrorMessage(id, ErrPermissionDenied, "read-only client"), nil
		}
	}
	if s.handler == nil {
		return NewErrorMessage(id, ErrInvalidRequest, "no handler"), nil
	}

	var resp *Message
	err := logging.Guard("ipc handler", func() error {
		var herr error
		resp, herr = s.handler.HandleMessage(s.ctx, c, msg)
		return herr
	})
	return resp, err
}

func (s *Server) pong(_ *Client, msg *Message) (*Message, error) {
	return NewMessage(MsgPong, msg.Header.RequestID, nil), nil
}

func (s *Server) handshake(c *Client, msg *Message) (*Message, error) {
	var req HandshakeRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid handshake"), nil
	}

	c.mu.Lock()
	c.name, c.version = req.ClientName, req.ClientVersion
	perm := c.permission
	c.mu.Unlock()
	s.log.Debug("client connected", "client_id", c.ID, "name", req.ClientName, "client_version", req.ClientVersion)

	return NewResponse(MsgHandshakeAck, msg.Header.RequestID, &HandshakeResponse{
		ServerVersion:   s.cfg.Version,
		ProtocolVersion: ProtocolVersion,
		SessionID:       c.ID,
		Permission:      perm,
	})
}

// authenticate grants write access when the peer runs as the daemon's user.
func (s *Server) authenticate(c *Client, msg *Message) (*Message, error) {
	var req AuthRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid auth request"), nil
	}

	cred, err := authorizePeer(c.conn)
	if err != nil {
		s.log.Warn("client authentication failed", "client_id", c.ID, "reason", err)
		return NewResponse(MsgAuthResponse, msg.Header.RequestID, &AuthResponse{Error: err.Error()})
	}

	c.mu.Lock()
	c.authenticated = true
	c.permission = PermReadWrite
	c.mu.Unlock()
	if cred != nil {
		s.log.Debug("client authenticated", "client_id", c.ID, "pid", cred.PID, "uid", cred.UID)
	}
	return NewResponse(MsgAuthResponse, msg.Header.RequestID, &AuthResponse{Success: true, Permission: PermReadWrite})
}

// defaultEvents is what an empty subscribe request signs up for.
var defaultEvents = []EventType{EventHistoryChanged, EventPrivateModeChanged, EventDaemonShutdown}

func (s *Server) subscribe(c *Client, msg *Message) (*Message, error) {
	var req SubscribeRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid subscribe request"), nil
		}
	}
	types := req.Events
	if len(types) == 0 {
		types = defaultEvents
	}

	set := make(map[EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	c.mu.Lock()
	c.subscribed = set
	c.mu.Unlock()

	return NewResponse(MsgSubscribeResp, msg.Header.RequestID, &SubscribeResponse{
		Success:        true,
		SubscriptionID: uuid.NewString(),
	})
}

func (s *Server) unsubscribe(c *Client, msg *Message) (*Message, error) {
	c.mu.Lock()
	c.subscribed = nil
	c.mu.Unlock()
	return NewMessage(MsgUnsubscribeResp, msg.Header.RequestID, nil), nil
}

func (s *Server) fanOut() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case e := <-s.events:
			s.deliver(e)
		}
	}
}

// deliver writes e to every client subscribed to its type.
func (s *Server) deliver(e *Event) {
	payload, err := Encode(e)
	if err != nil {
		return
	}

	s.mu.RLock()
	targets := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		if c.wants(e.Type) {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		if err := s.send(c, NewMessage(MsgEvent, s.seq.Add(1), payload)); err != nil {
			s.log.Debug("event delivery failed", "client_id", c.ID, "error", err)
		}
	}
}

// send serialises writes to one connection.
func (s *Server) send(c *Client, msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return msg.Write(c.conn)
}
