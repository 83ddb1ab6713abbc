package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"smartclip/internal/queue"
	"smartclip/internal/store"
)

// Common errors
var (
	ErrNotConnected     = errors.New("not connected to daemon")
	ErrConnectionLost   = errors.New("connection to daemon lost")
	ErrTimeout          = errors.New("request timeout")
	ErrDaemonNotRunning = errors.New("daemon is not running")
)

// RemoteError is an error reported by the daemon.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Unwrap maps well-known codes back to the sentinels they came from, so
// errors.Is(err, store.ErrNotFound) works on the client side.
func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case ErrNotFound:
		return store.ErrNotFound
	case ErrQueueEmpty:
		return queue.ErrEmpty
	default:
		return nil
	}
}

// session is one live connection. Its pending requests die with it.
type session struct {
	conn    net.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint32]chan *Message
	dead    chan struct{}
	once    sync.Once
}

func newSession(conn net.Conn) *session {
	return &session{conn: conn, pending: make(map[uint32]chan *Message), dead: make(chan struct{})}
}

func (s *session) kill() {
	s.once.Do(func() {
		close(s.dead)
		s.conn.Close()
	})
}

func (s *session) write(msg *Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return msg.Write(s.conn)
}

func (s *session) expect(id uint32) chan *Message {
	ch := make(chan *Message, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	return ch
}

func (s *session) forget(id uint32) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *session) resolve(msg *Message) {
	s.mu.Lock()
	ch := s.pending[msg.Header.RequestID]
	s.mu.Unlock()
	if ch != nil {
		select {
		case ch <- msg:
		default:
		}
	}
}

// IPCClient talks to smartclipd. It is safe for concurrent use; requests
// are matched to responses by request ID.
type IPCClient struct {
	config ClientConfig
	seq    atomic.Uint32

	mu         sync.Mutex
	sess       *session
	sessionID  string
	version    string
	permission PermissionLevel

	events chan *Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ClientConfig configures the IPC client.
type ClientConfig struct {
	SocketPath     string
	ClientName     string
	ClientVersion  string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultClientConfig returns the defaults for socketPath.
func DefaultClientConfig(socketPath string) ClientConfig {
	return ClientConfig{
		SocketPath:     socketPath,
		ClientName:     "smartclipctl",
		ClientVersion:  "dev",
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// NewClient creates a client. It does not connect until Connect.
func NewClient(cfg ClientConfig) *IPCClient {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &IPCClient{
		config: cfg,
		events: make(chan *Event, 100),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect dials the daemon, performs the handshake and authenticates. It is
// a no-op while a connection is up, so callers may use it to reconnect.
func (c *IPCClient) Connect() error {
	if c.ctx.Err() != nil {
		return ErrNotConnected
	}
	if c.current() != nil {
		return nil
	}

	conn, err := dial(c.config.SocketPath, c.config.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	sess := newSession(conn)
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	c.wg.Add(1)
	go c.read(sess)

	if err := c.handshake(); err != nil {
		c.drop(sess)
		return fmt.Errorf("handshake: %w", err)
	}
	if err := c.authenticate(); err != nil {
		c.drop(sess)
		return fmt.Errorf("authenticate: %w", err)
	}
	return nil
}

// Close disconnects and stops the reader.
func (c *IPCClient) Close() error {
	c.cancel()
	if sess := c.current(); sess != nil {
		c.drop(sess)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

func (c *IPCClient) current() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// drop kills sess and forgets it if it is still the active session.
func (c *IPCClient) drop(sess *session) {
	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
	}
	c.mu.Unlock()
	sess.kill()
}

// IsConnected reports whether a connection is up.
func (c *IPCClient) IsConnected() bool {
	return c.current() != nil
}

// SessionID returns the ID the daemon assigned at handshake.
func (c *IPCClient) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Permission returns the access level the daemon granted this connection.
func (c *IPCClient) Permission() PermissionLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permission
}

// ServerVersion returns the daemon version reported at handshake.
func (c *IPCClient) ServerVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Events delivers subscribed events. It is never closed; select on Done as
// well. Events are dropped when nobody reads them.
func (c *IPCClient) Events() <-chan *Event {
	return c.events
}

// Done is closed when the client is closed.
func (c *IPCClient) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *IPCClient) handshake() error {
	var ack HandshakeResponse
	err := c.call(c.ctx, MsgHandshake, MsgHandshakeAck, &HandshakeRequest{
		ClientVersion:   c.config.ClientVersion,
		ClientName:      c.config.ClientName,
		ProtocolVersion: ProtocolVersion,
	}, &ack)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sessionID, c.version, c.permission = ack.SessionID, ack.ServerVersion, ack.Permission
	c.mu.Unlock()
	return nil
}

func (c *IPCClient) authenticate() error {
	var resp AuthResponse
	if err := c.call(c.ctx, MsgAuthenticate, MsgAuthResponse, &AuthRequest{Method: "peercred", PID: os.Getpid()}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("authentication failed: %s", resp.Error)
	}
	c.mu.Lock()
	c.permission = resp.Permission
	c.mu.Unlock()
	return nil
}

// roundTrip sends one request and waits for the message with the same
// request ID.
func (c *IPCClient) roundTrip(ctx context.Context, typ MessageType, payload any) (*Message, error) {
	sess := c.current()
	if sess == nil {
		return nil, ErrNotConnected
	}

	var data []byte
	if payload != nil {
		var err error
		if data, err = Encode(payload); err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}

	id := c.seq.Add(1)
	reply := sess.expect(id)
	defer sess.forget(id)

	if err := sess.write(NewMessage(typ, id, data)); err != nil {
		c.drop(sess)
		return nil, fmt.Errorf("write message: %w", err)
	}

	timer := time.NewTimer(c.config.RequestTimeout)
	defer timer.Stop()
	select {
	case msg := <-reply:
		return msg, nil
	case <-sess.dead:
		return nil, ErrConnectionLost
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrNotConnected
	}
}

// call performs a round trip and decodes a response of type want into
// resp. Error responses come back as *RemoteError.
func (c *IPCClient) call(ctx context.Context, typ, want MessageType, req, resp any) error {
	msg, err := c.roundTrip(ctx, typ, req)
	if err != nil {
		return err
	}
	switch msg.Header.Type {
	case MsgError:
		var er ErrorResponse
		if err := Decode(msg.Payload, &er); err != nil {
			return fmt.Errorf("decode error response: %w", err)
		}
		return &RemoteError{Code: er.Code, Message: er.Message}
	case want:
	default:
		return fmt.Errorf("unexpected response type: %#04x", uint16(msg.Header.Type))
	}
	if resp != nil && len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// read consumes sess until it fails. The daemon pings idle clients, so no
// read deadline is set.
func (c *IPCClient) read(sess *session) {
	defer c.wg.Done()
	defer c.drop(sess)

	for {
		msg, err := ReadMessage(sess.conn)
		if err != nil {
			return
		}
		switch msg.Header.Type {
		case MsgPing:
			sess.write(NewMessage(MsgPong, msg.Header.RequestID, nil))
		case MsgEvent:
			var e Event
			if Decode(msg.Payload, &e) != nil {
				continue
			}
			select {
			case c.events <- &e:
			default:
			}
		default:
			sess.resolve(msg)
		}
	}
}

// Status requests the daemon status
func (c *IPCClient) Status(ctx context.Context) (*StatusResponse, error) {
	var status StatusResponse
	if err := c.call(ctx, MsgStatusRequest, MsgStatusResponse, &StatusRequest{}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Ping checks if the daemon is responsive
func (c *IPCClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.call(ctx, MsgPing, MsgPong, nil, nil)
}

// ListClips returns a page of history
func (c *IPCClient) ListClips(ctx context.Context, req ListClipsRequest) ([]ClipInfo, error) {
	var resp ListClipsResponse
	if err := c.call(ctx, MsgListClips, MsgListClipsResp, &req, &resp); err != nil {
		return nil, err
	}
	return resp.Clips, nil
}

// GetClip returns a clip with its full payload
func (c *IPCClient) GetClip(ctx context.Context, id int64) (*ClipInfo, error) {
	var resp ClipResponse
	if err := c.call(ctx, MsgGetClip, MsgGetClipResp, &ClipRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp.Clip, nil
}

// DeleteClip removes a clip
func (c *IPCClient) DeleteClip(ctx context.Context, id int64) (bool, error) {
	var resp DeleteClipResponse
	if err := c.call(ctx, MsgDeleteClip, MsgDeleteClipResp, &ClipRequest{ID: id}, &resp); err != nil {
		return false, err
	}
	return resp.Deleted, nil
}

// TogglePin flips a clip's pinned flag and returns the new value
func (c *IPCClient) TogglePin(ctx context.Context, id int64) (bool, error) {
	var resp TogglePinResponse
	if err := c.call(ctx, MsgTogglePin, MsgTogglePinResp, &ClipRequest{ID: id}, &resp); err != nil {
		return false, err
	}
	return resp.Pinned, nil
}

// ClearUnpinned removes every unpinned clip
func (c *IPCClient) ClearUnpinned(ctx context.Context) (int64, error) {
	var resp ClearUnpinnedResponse
	if err := c.call(ctx, MsgClearUnpinned, MsgClearUnpinnedResp, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

// CopyClip writes a clip back to the clipboard without reordering history
func (c *IPCClient) CopyClip(ctx context.Context, id int64) (*ClipInfo, error) {
	var resp ClipResponse
	if err := c.call(ctx, MsgCopyClip, MsgCopyClipResp, &ClipRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp.Clip, nil
}

// SetPrivate turns private mode on or off
func (c *IPCClient) SetPrivate(ctx context.Context, enabled bool) (bool, error) {
	var resp SetPrivateResponse
	if err := c.call(ctx, MsgSetPrivate, MsgSetPrivateResp, &SetPrivateRequest{Enabled: enabled}, &resp); err != nil {
		return false, err
	}
	return resp.Enabled, nil
}

// QueueToggle adds or removes a clip from the paste queue
func (c *IPCClient) QueueToggle(ctx context.Context, id int64) (*QueueToggleResponse, error) {
	var resp QueueToggleResponse
	if err := c.call(ctx, MsgQueueToggle, MsgQueueToggleResp, &ClipRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns the paste queue
func (c *IPCClient) QueueList(ctx context.Context) ([]int64, error) {
	var resp QueueListResponse
	if err := c.call(ctx, MsgQueueList, MsgQueueListResp, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// QueueClear empties the paste queue
func (c *IPCClient) QueueClear(ctx context.Context) error {
	return c.call(ctx, MsgQueueClear, MsgQueueClearResp, nil, nil)
}

// PasteNext writes the front of the paste queue to the clipboard
func (c *IPCClient) PasteNext(ctx context.Context) (*ClipInfo, error) {
	var resp ClipResponse
	if err := c.call(ctx, MsgPasteNext, MsgPasteNextResp, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Clip, nil
}

// Subscribe asks for events of the given types; none means the default set.
func (c *IPCClient) Subscribe(ctx context.Context, events ...EventType) error {
	var resp SubscribeResponse
	if err := c.call(ctx, MsgSubscribe, MsgSubscribeResp, &SubscribeRequest{Events: events}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New("subscription failed")
	}
	return nil
}

// Unsubscribe stops event delivery.
func (c *IPCClient) Unsubscribe(ctx context.Context) error {
	return c.call(ctx, MsgUnsubscribe, MsgUnsubscribeResp, &UnsubscribeRequest{}, nil)
}
