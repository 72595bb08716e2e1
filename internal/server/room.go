package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/neo/interview_agent/internal/agent"
	"github.com/neo/interview_agent/internal/logging"
	"github.com/neo/interview_agent/internal/types"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

// Frame types exchanged over the session websocket
const (
	FrameAudio       = "audio"
	FrameText        = "text"
	FrameTranscript  = "transcript"
	FrameRPC         = "rpc"
	FrameRPCResponse = "rpc_response"
	FrameError       = "error"
)

// Frame is one JSON message on the session websocket. Audio is PCM16
// and travels base64 encoded.
type Frame struct {
	Type      string `json:"type"`
	Audio     []byte `json:"audio,omitempty"`
	Text      string `json:"text,omitempty"`
	Role      string `json:"role,omitempty"`
	Final     bool   `json:"final,omitempty"`
	Method    string `json:"method,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Payload   string `json:"payload,omitempty"`
	Error     string `json:"error,omitempty"`
}

type subscriber[T any] struct {
	identity string
	fn       func(T)
}

// wsRoom is a room with a single remote participant on the other end of a
// websocket
type wsRoom struct {
	name     string
	identity string
	conn     *websocket.Conn

	writeMu sync.Mutex

	mu      sync.RWMutex
	nextID  int
	audio   map[int]subscriber[[]byte]
	text    map[int]subscriber[string]
	methods map[string]agent.RPCHandler

	calls sync.WaitGroup
}

var _ agent.Room = (*wsRoom)(nil)

func newWSRoom(name, identity string, conn *websocket.Conn) *wsRoom {
	conn.SetReadLimit(maxMessageSize)
	return &wsRoom{
		name:     name,
		identity: identity,
		conn:     conn,
		audio:    make(map[int]subscriber[[]byte]),
		text:     make(map[int]subscriber[string]),
		methods:  make(map[string]agent.RPCHandler),
	}
}

func (r *wsRoom) Name() string { return r.name }

func (r *wsRoom) send(f Frame) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return r.conn.WriteJSON(f)
}

func (r *wsRoom) sendError(err error) error {
	return r.send(Frame{Type: FrameError, Error: err.Error()})
}

func (r *wsRoom) PublishAudio(ctx context.Context, frame []byte) error {
	return r.send(Frame{Type: FrameAudio, Audio: frame})
}

func (r *wsRoom) PublishTranscript(ctx context.Context, t agent.Transcript) error {
	return r.send(Frame{Type: FrameTranscript, Role: string(t.Role), Text: t.Text, Final: t.Final})
}

func (r *wsRoom) SubscribeAudio(identity string, fn func([]byte)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.audio[id] = subscriber[[]byte]{identity: identity, fn: fn}
	return func() {
		r.mu.Lock()
		delete(r.audio, id)
		r.mu.Unlock()
	}
}

func (r *wsRoom) SubscribeText(identity string, fn func(string)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.text[id] = subscriber[string]{identity: identity, fn: fn}
	return func() {
		r.mu.Lock()
		delete(r.text, id)
		r.mu.Unlock()
	}
}

func (r *wsRoom) RegisterRPCMethod(method string, h agent.RPCHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[method] = h
}

func deliver[T any](subs []subscriber[T], identity string, v T) {
	for _, s := range subs {
		if s.identity == identity {
			s.fn(v)
		}
	}
}

func snapshot[T any](mu *sync.RWMutex, m map[int]subscriber[T]) []subscriber[T] {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]subscriber[T], 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}

// readLoop dispatches inbound frames until the connection closes or ctx is
// done. RPCs run concurrently so audio keeps flowing while a
// reconfiguration is in progress.
func (r *wsRoom) readLoop(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		r.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		var f Frame
		if err := r.conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		switch f.Type {
		case FrameAudio:
			deliver(snapshot(&r.mu, r.audio), r.identity, f.Audio)
		case FrameText:
			if err := checkTextRole(f.Role); err != nil {
				r.sendError(err)
				continue
			}
			deliver(snapshot(&r.mu, r.text), r.identity, f.Text)
		case FrameRPC:
			r.calls.Add(1)
			go func() {
				defer r.calls.Done()
				r.handleRPC(ctx, f)
			}()
		default:
			logging.LogWebSocketEvent("unknown_frame", r.name, r.identity, map[string]interface{}{"type": f.Type})
			r.sendError(fmt.Errorf("unknown frame type %q", f.Type))
		}
	}
}

// checkTextRole accepts text frames with no role or the user role. A
// participant cannot speak as the system or the agent.
func checkTextRole(raw string) error {
	if raw == "" {
		return nil
	}
	role, err := types.ParseRole(raw)
	if err != nil {
		return err
	}
	if role != types.RoleUser {
		return fmt.Errorf("%w: participants send %s text only", types.ErrInvalidRole, types.RoleUser)
	}
	return nil
}

func (r *wsRoom) handleRPC(ctx context.Context, f Frame) {
	if f.RequestID == "" {
		f.RequestID = uuid.NewString()
	}
	logging.LogRPCEvent("rpc_received", f.Method, r.identity, map[string]interface{}{"request_id": f.RequestID})

	resp := Frame{Type: FrameRPCResponse, Method: f.Method, RequestID: f.RequestID}

	r.mu.RLock()
	h, ok := r.methods[f.Method]
	r.mu.RUnlock()

	if !ok {
		resp.Error = fmt.Sprintf("method %q is not registered", f.Method)
	} else {
		payload, err := h(ctx, agent.RPCInvocation{
			RequestID:      f.RequestID,
			CallerIdentity: r.identity,
			Payload:        f.Payload,
		})
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Payload = payload
		}
	}

	if err := r.send(resp); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		logging.LogExceptions("rpc_response", err, map[string]interface{}{"method": f.Method})
	}
}

// close waits for in-flight RPCs and closes the connection
func (r *wsRoom) close(code int, reason string) {
	r.calls.Wait()
	r.writeMu.Lock()
	r.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	r.writeMu.Unlock()
	r.conn.Close()
}
