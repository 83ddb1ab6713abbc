package ipc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smartclip/internal/clip"
	"smartclip/internal/clipboard"
	"smartclip/internal/logging"
	"smartclip/internal/queue"
	"smartclip/internal/service"
	"smartclip/internal/store"
)

// DaemonHandler implements the Handler interface on top of the history
// service.
type DaemonHandler struct {
	svc     *service.Service
	clients func() int
	log     *logging.Logger

	// broadcaster sends events that do not originate from the notify hub.
	broadcaster func(*Event)
}

// NewDaemonHandler creates a new daemon handler
func NewDaemonHandler(svc *service.Service, log *logging.Logger) *DaemonHandler {
	if log == nil {
		log = logging.Default()
	}
	return &DaemonHandler{svc: svc, log: log.WithComponent("ipc")}
}

// AttachServer lets the handler report client counts and broadcast
// private mode changes.
func (h *DaemonHandler) AttachServer(s *Server) {
	h.clients = s.ClientCount
	h.broadcaster = s.Broadcast
}

// HandleMessage processes an IPC message
func (h *DaemonHandler) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	id := msg.Header.RequestID
	switch msg.Header.Type {
	case MsgStatusRequest:
		return h.handleStatus(ctx, id)
	case MsgListClips:
		return h.handleListClips(ctx, id, msg)
	case MsgGetClip:
		return h.handleGetClip(ctx, id, msg)
	case MsgDeleteClip:
		return h.handleDeleteClip(ctx, id, msg)
	case MsgTogglePin:
		return h.handleTogglePin(ctx, id, msg)
	case MsgClearUnpinned:
		return h.handleClearUnpinned(ctx, id)
	case MsgCopyClip:
		return h.handleCopyClip(ctx, id, msg)
	case MsgSetPrivate:
		return h.handleSetPrivate(id, msg)
	case MsgQueueToggle:
		return h.handleQueueToggle(ctx, id, msg)
	case MsgQueueList:
		return NewResponse(MsgQueueListResp, id, &QueueListResponse{Items: h.svc.QueueItems()})
	case MsgQueueClear:
		h.svc.ClearQueue()
		return NewMessage(MsgQueueClearResp, id, nil), nil
	case MsgPasteNext:
		return h.handlePasteNext(ctx, id)
	default:
		return NewErrorMessage(id, ErrInvalidRequest,
			fmt.Sprintf("unknown message type: %#04x", uint16(msg.Header.Type))), nil
	}
}

// errorMessage maps service errors to protocol error codes.
func (h *DaemonHandler) errorMessage(requestID uint32, op string, err error) *Message {
	code := ErrInternalError
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = ErrNotFound
	case errors.Is(err, queue.ErrEmpty):
		code = ErrQueueEmpty
	case errors.Is(err, service.ErrInvalidArgument), errors.Is(err, store.ErrInvalidClip):
		code = ErrInvalidRequest
	case errors.Is(err, clipboard.ErrUnsupported):
		code = ErrUnsupported
	}
	if code == ErrInternalError {
		h.log.Error("request failed", "op", op, "error", err)
	}
	return NewErrorMessage(requestID, code, err.Error())
}

func decodeClipRequest(msg *Message) (ClipRequest, error) {
	var req ClipRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return req, err
	}
	if req.ID <= 0 {
		return req, fmt.Errorf("invalid clip id %d", req.ID)
	}
	return req, nil
}

func (h *DaemonHandler) handleStatus(ctx context.Context, id uint32) (*Message, error) {
	st, err := h.svc.Status(ctx)
	if err != nil {
		return h.errorMessage(id, "status", err), nil
	}
	resp := &StatusResponse{
		Version:      st.Version,
		Uptime:       st.Uptime,
		StartedAt:    st.StartedAt,
		PrivateMode:  st.PrivateMode,
		Capturing:    st.Capturing,
		ClipCount:    st.ClipCount,
		QueueLength:  st.QueueLength,
		LastCapture:  st.LastCapture,
		Capture:      st.Capture,
		ExpiredTotal: st.ExpiredTotal,
	}
	if h.clients != nil {
		resp.Clients = h.clients()
	}
	return NewResponse(MsgStatusResponse, id, resp)
}

func (h *DaemonHandler) handleListClips(ctx context.Context, id uint32, msg *Message) (*Message, error) {
	var req ListClipsRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(id, ErrInvalidRequest, "invalid request"), nil
		}
	}
	r, err := clip.ParseDateRange(req.Range)
	if err != nil {
		return NewErrorMessage(id, ErrInvalidRequest, err.Error()), nil
	}

	clips, err := h.svc.ListClips(ctx, service.ListOptions{
		Limit:      req.Limit,
		Offset:     req.Offset,
		Query:      req.Query,
		Range:      r,
		Thumbnails: req.Thumbnails,
	})
	if err != nil {
		return h.errorMessage(id, "list", err), nil
	}

	q := h.svc.Queue()
	resp := &ListClipsResponse{Clips: make([]ClipInfo, 0, len(clips))}
	for i := range clips {
		info := newListedClipInfo(&clips[i], req.Thumbnails)
		info.Queued = q.Position(clips[i].ID)
		resp.Clips = append(resp.Clips, info)
	}
	return NewResponse(MsgListClipsResp, id, resp)
}

func (h *DaemonHandler) handleGetClip(ctx context.Context, id uint32, msg *Message) (*Message, error) {
	req, err := decodeClipRequest(msg)
	if err != nil {
		return NewErrorMessage(id, ErrInvalidRequest, err.Error()), nil
	}
	c, err := h.svc.GetClip(ctx, req.ID)
	if err != nil {
		return h.errorMessage(id, "get", err), nil
	}
	info := NewClipInfo(c)
	info.Queued = h.svc.Queue().Position(c.ID)
	return NewResponse(MsgGetClipResp, id, &ClipResponse{Clip: info})
}

func (h *DaemonHandler) handleDeleteClip(ctx context.Context, id uint32, msg *Message) (*Message, error) {
	req, err := decodeClipRequest(msg)
	if err != nil {
		return NewErrorMessage(id, ErrInvalidRequest, err.Error()), nil
	}
	deleted, err := h.svc.DeleteClip(ctx, req.ID)
	if err != nil {
		return h.errorMessage(id, "delete", err), nil
	}
	return NewResponse(MsgDeleteClipResp, id, &DeleteClipResponse{Deleted: deleted})
}

func (h *DaemonHandler) handleTogglePin(ctx context.Context, id uint32, msg *Message) (*Message, error) {
	req, err := decodeClipRequest(msg)
	if err != nil {
		return NewErrorMessage(id, ErrInvalidRequest, err.Error()), nil
	}
	pinned, err := h.svc.TogglePin(ctx, req.ID)
	if err != nil {
		return h.errorMessage(id, "toggle pin", err), nil
	}
	return NewResponse(MsgTogglePinResp, id, &TogglePinResponse{Pinned: pinned})
}

func (h *DaemonHandler) handleClearUnpinned(ctx context.Context, id uint32) (*Message, error) {
	n, err := h.svc.ClearUnpinned(ctx)
	if err != nil {
		return h.errorMessage(id, "clear", err), nil
	}
	return NewResponse(MsgClearUnpinnedResp, id, &ClearUnpinnedResponse{Removed: n})
}

func (h *DaemonHandler) handleCopyClip(ctx context.Context, id uint32, msg *Message) (*Message, error) {
	req, err := decodeClipRequest(msg)
	if err != nil {
		return NewErrorMessage(id, ErrInvalidRequest, err.Error()), nil
	}
	c, err := h.svc.WriteClipboardAndSuppress(ctx, req.ID)
	if err != nil {
		return h.errorMessage(id, "copy", err), nil
	}
	return NewResponse(MsgCopyClipResp, id, &ClipResponse{Clip: NewClipInfo(c)})
}

func (h *DaemonHandler) handleSetPrivate(id uint32, msg *Message) (*Message, error) {
	var req SetPrivateRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(id, ErrInvalidRequest, "invalid request"), nil
	}
	was := h.svc.PrivateMode()
	h.svc.SetPrivateMode(req.Enabled)
	if was != req.Enabled && h.broadcaster != nil {
		h.broadcaster(&Event{Type: EventPrivateModeChanged, Timestamp: time.Now(), PrivateMode: req.Enabled})
	}
	return NewResponse(MsgSetPrivateResp, id, &SetPrivateResponse{Enabled: h.svc.PrivateMode()})
}

func (h *DaemonHandler) handleQueueToggle(ctx context.Context, id uint32, msg *Message) (*Message, error) {
	req, err := decodeClipRequest(msg)
	if err != nil {
		return NewErrorMessage(id, ErrInvalidRequest, err.Error()), nil
	}
	queued, err := h.svc.ToggleQueued(ctx, req.ID)
	if err != nil {
		return h.errorMessage(id, "queue toggle", err), nil
	}
	return NewResponse(MsgQueueToggleResp, id, &QueueToggleResponse{Queued: queued, Items: h.svc.QueueItems()})
}

func (h *DaemonHandler) handlePasteNext(ctx context.Context, id uint32) (*Message, error) {
	c, err := h.svc.PasteNext(ctx)
	if err != nil {
		return h.errorMessage(id, "paste next", err), nil
	}
	return NewResponse(MsgPasteNextResp, id, &ClipResponse{Clip: NewClipInfo(c)})
}
