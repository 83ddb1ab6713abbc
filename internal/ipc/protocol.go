// Package ipc is the local protocol between smartclipd and its clients.
//
// Every message is a 16-byte big-endian header followed by a JSON payload.
// Requests carry a request ID that the matching response echoes; events
// pushed by the daemon use IDs from the daemon's own sequence.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"smartclip/internal/capture"
	"smartclip/internal/clip"
)

const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x53434C50 // "SCLP"
)

// MaxPayloadSize bounds a single message. Full-size images travel inside
// GetClip responses.
const MaxPayloadSize = 96 * 1024 * 1024

// MessageType selects the payload schema. Responses are the request type plus one.
type MessageType uint16

const (
	// Protocol housekeeping.
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005
	MsgAuthenticate MessageType = 0x0007
	MsgAuthResponse MessageType = 0x0008

	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101

	// History.
	MsgListClips         MessageType = 0x0200
	MsgListClipsResp     MessageType = 0x0201
	MsgGetClip           MessageType = 0x0202
	MsgGetClipResp       MessageType = 0x0203
	MsgDeleteClip        MessageType = 0x0204
	MsgDeleteClipResp    MessageType = 0x0205
	MsgTogglePin         MessageType = 0x0206
	MsgTogglePinResp     MessageType = 0x0207
	MsgClearUnpinned     MessageType = 0x0208
	MsgClearUnpinnedResp MessageType = 0x0209
	MsgCopyClip          MessageType = 0x020A
	MsgCopyClipResp      MessageType = 0x020B

	MsgSetPrivate     MessageType = 0x0300
	MsgSetPrivateResp MessageType = 0x0301

	// Paste queue.
	MsgQueueToggle     MessageType = 0x0400
	MsgQueueToggleResp MessageType = 0x0401
	MsgQueueList       MessageType = 0x0402
	MsgQueueListResp   MessageType = 0x0403
	MsgQueueClear      MessageType = 0x0404
	MsgQueueClearResp  MessageType = 0x0405
	MsgPasteNext       MessageType = 0x0406
	MsgPasteNextResp   MessageType = 0x0407

	// Events.
	MsgSubscribe       MessageType = 0x0500
	MsgSubscribeResp   MessageType = 0x0501
	MsgUnsubscribe     MessageType = 0x0502
	MsgUnsubscribeResp MessageType = 0x0503
	MsgEvent           MessageType = 0x0504
)

// mutating lists the message types that need write permission.
var mutating = map[MessageType]bool{
	MsgDeleteClip:    true,
	MsgTogglePin:     true,
	MsgClearUnpinned: true,
	MsgCopyClip:      true,
	MsgSetPrivate:    true,
	MsgQueueToggle:   true,
	MsgQueueClear:    true,
	MsgPasteNext:     true,
}

// EventType names a pushed event.
type EventType uint16

const (
	EventHistoryChanged     EventType = 0x0001
	EventPrivateModeChanged EventType = 0x0002
	EventDaemonShutdown     EventType = 0x0003
)

func (t EventType) String() string {
	switch t {
	case EventHistoryChanged:
		return "history_changed"
	case EventPrivateModeChanged:
		return "private_mode_changed"
	case EventDaemonShutdown:
		return "daemon_shutdown"
	default:
		return fmt.Sprintf("event(%d)", uint16(t))
	}
}

// PermissionLevel is what a connection may do. Clients start read-only.
type PermissionLevel uint8

const (
	PermReadOnly  PermissionLevel = 0x01
	PermReadWrite PermissionLevel = 0x02
)

// Header precedes every payload on the wire.
type Header struct {
	Magic     uint32
	Version   uint8
	Flags     uint8
	Type      MessageType
	RequestID uint32
	Length    uint32 // payload bytes after the header
}

const HeaderSize = 16

// FlagJSON marks a JSON payload, the only encoding in use.
const FlagJSON uint8 = 0x04

// Message is a header with its payload.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage frames payload as a JSON message.
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

func (h *Header) Write(w io.Writer) error {
	var buf [HeaderSize]byte
	h.put(buf[:])
	_, err := w.Write(buf[:])
	return err
}

func (h *Header) put(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
}

// ReadHeader reads and checks one header.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}

	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}

	return h, nil
}

// Write writes the message to a writer as a single buffer so that message
// mode pipes see one frame.
func (m *Message) Write(w io.Writer) error {
	m.Header.Length = uint32(len(m.Payload))
	buf := make([]byte, HeaderSize+len(m.Payload))
	m.Header.put(buf[:HeaderSize])
	copy(buf[HeaderSize:], m.Payload)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads one framed message, refusing payloads above
// MaxPayloadSize before allocating them.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	if h.Length > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
	}
	m := &Message{Header: *h}
	if h.Length == 0 {
		return m, nil
	}
	m.Payload = make([]byte, h.Length)
	if _, err := io.ReadFull(r, m.Payload); err != nil {
		return nil, err
	}
	return m, nil
}

// HandshakeRequest opens a session.
type HandshakeRequest struct {
	ClientVersion   string `json:"client_version"`
	ClientName      string `json:"client_name"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

type HandshakeResponse struct {
	ServerVersion   string          `json:"server_version"`
	ProtocolVersion uint8           `json:"protocol_version"`
	SessionID       string          `json:"session_id"`
	Permission      PermissionLevel `json:"permission"`
}

// AuthRequest asks for write access. The daemon checks the socket peer,
// not the claimed PID.
type AuthRequest struct {
	Method string `json:"method"` // "peercred" or "none"
	PID    int    `json:"pid,omitempty"`
}

type AuthResponse struct {
	Success    bool            `json:"success"`
	Permission PermissionLevel `json:"permission"`
	Error      string          `json:"error,omitempty"`
}

// ErrorResponse is the payload of MsgError.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in ErrorResponse.
const (
	ErrUnknown          = 1
	ErrInvalidRequest   = 2
	ErrNotFound         = 3
	ErrPermissionDenied = 4
	ErrInternalError    = 5
	ErrQueueEmpty       = 6
	ErrUnsupported      = 7
)

type StatusRequest struct{}

// StatusResponse is a point-in-time view of the daemon.
type StatusResponse struct {
	Version      string        `json:"version"`
	Uptime       time.Duration `json:"uptime"`
	StartedAt    time.Time     `json:"started_at"`
	PrivateMode  bool          `json:"private_mode"`
	Capturing    bool          `json:"capturing"`
	ClipCount    int64         `json:"clip_count"`
	QueueLength  int           `json:"queue_length"`
	LastCapture  time.Time     `json:"last_capture,omitzero"`
	Capture      capture.Stats `json:"capture"`
	ExpiredTotal int64         `json:"expired_total"`
	Clients      int           `json:"clients"`
}

// ClipInfo is the wire form of a clip.
type ClipInfo struct {
	ID          int64     `json:"id"`
	Kind        string    `json:"kind"`
	Text        string    `json:"text,omitempty"`
	Image       []byte    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Pinned      bool      `json:"pinned"`
	IsOTP       bool      `json:"is_otp"`
	Fingerprint string    `json:"fingerprint"`
	Size        int       `json:"size"`             // payload bytes, before any omission
	Queued      int       `json:"queued,omitempty"` // 1-based paste queue position
}

// MaxListedImageBytes is the largest image payload embedded in a listing.
// Larger images are listed without bytes; GetClip returns them in full.
const MaxListedImageBytes = 512 << 10

// ErrPayloadOmitted is returned when converting a listed image whose bytes
// were left out of the listing.
var ErrPayloadOmitted = errors.New("ipc: image payload omitted from listing")

// NewClipInfo converts a clip to its wire form.
func NewClipInfo(c *clip.Clip) ClipInfo {
	info := ClipInfo{
		ID:          c.ID,
		Kind:        c.Kind().String(),
		CreatedAt:   c.CreatedAt,
		Pinned:      c.Pinned,
		IsOTP:       c.IsOTP,
		Fingerprint: c.Fingerprint.String(),
	}
	switch v := c.Content.(type) {
	case clip.Text:
		info.Text = string(v)
		info.Size = len(v)
	case clip.Image:
		info.Image = []byte(v)
		info.Size = len(v)
	}
	return info
}

// newListedClipInfo is NewClipInfo for listings. Image bytes are only kept
// when the caller asked for thumbnails and the payload fits the listing cap.
func newListedClipInfo(c *clip.Clip, thumbnails bool) ClipInfo {
	info := NewClipInfo(c)
	if info.Kind == clip.KindImage.String() && (!thumbnails || len(info.Image) > MaxListedImageBytes) {
		info.Image = nil
	}
	return info
}

// Omitted reports whether a listed image came without its bytes.
func (i ClipInfo) Omitted() bool {
	return i.Kind == clip.KindImage.String() && len(i.Image) == 0
}

// Clip converts the wire form back to a clip.
func (i ClipInfo) Clip() (*clip.Clip, error) {
	c := &clip.Clip{
		ID:        i.ID,
		CreatedAt: i.CreatedAt,
		Pinned:    i.Pinned,
		IsOTP:     i.IsOTP,
	}
	kind, err := clip.ParseKind(i.Kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case clip.KindText:
		c.Content = clip.Text(i.Text)
	case clip.KindImage:
		if i.Omitted() {
			return nil, ErrPayloadOmitted
		}
		c.Content = clip.Image(i.Image)
	}
	if i.Fingerprint != "" {
		fp, err := clip.ParseFingerprint(i.Fingerprint)
		if err != nil {
			return nil, err
		}
		c.Fingerprint = fp
	}
	return c, nil
}

// ListClipsRequest selects a page of history. Images are listed without
// their bytes unless Thumbnails is set.
type ListClipsRequest struct {
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
	Query      string `json:"query,omitempty"`
	Range      string `json:"range,omitempty"` // "all", "today", "week"
	Thumbnails bool   `json:"thumbnails,omitempty"`
}

// ListClipsResponse contains a page of history
type ListClipsResponse struct {
	Clips []ClipInfo `json:"clips"`
}

// ClipRequest names a clip by id
type ClipRequest struct {
	ID int64 `json:"id"`
}

// ClipResponse contains a single clip
type ClipResponse struct {
	Clip ClipInfo `json:"clip"`
}

// DeleteClipResponse reports whether a row was removed
type DeleteClipResponse struct {
	Deleted bool `json:"deleted"`
}

// TogglePinResponse contains the new pinned flag
type TogglePinResponse struct {
	Pinned bool `json:"pinned"`
}

// ClearUnpinnedResponse contains the number of removed clips
type ClearUnpinnedResponse struct {
	Removed int64 `json:"removed"`
}

// SetPrivateRequest turns private mode on or off
type SetPrivateRequest struct {
	Enabled bool `json:"enabled"`
}

// SetPrivateResponse contains the resulting private mode
type SetPrivateResponse struct {
	Enabled bool `json:"enabled"`
}

// QueueToggleResponse reports whether the clip is queued afterwards
type QueueToggleResponse struct {
	Queued bool    `json:"queued"`
	Items  []int64 `json:"items"`
}

// QueueListResponse contains the paste queue
type QueueListResponse struct {
	Items []int64 `json:"items"`
}

// SubscribeRequest requests event subscription
type SubscribeRequest struct {
	Events []EventType `json:"events"` // Empty means all events
}

// SubscribeResponse acknowledges subscription
type SubscribeResponse struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscription_id"`
}

// UnsubscribeRequest requests event unsubscription
type UnsubscribeRequest struct {
	SubscriptionID string `json:"subscription_id"`
}

// Event is a streamed event. It never carries clip content.
type Event struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	Reason      string    `json:"reason,omitempty"`
	ClipID      int64     `json:"clip_id,omitempty"`
	PrivateMode bool      `json:"private_mode,omitempty"`
}

// Encode encodes a payload to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{
		Code:    code,
		Message: message,
	})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
