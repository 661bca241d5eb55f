package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

const (
	writeTimeout   = 10 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	queueSize      = 256
)

type identity struct {
	ClientID    string
	UserID      string
	DisplayName string
	SceneID     string
}

// Viewer is one websocket watching a scene. Its outbound queue is bounded.
// Pulse damage that does not fit is not queued; the viewer is instead owed
// a pulse.resync naming the newest pulse it missed, after which it must
// repaint the whole frame.
type Viewer struct {
	identity
	hub   *Hub
	conn  *websocket.Conn
	queue chan []byte
	owed  atomic.Int64
	wake  chan struct{}
}

func newViewer(hub *Hub, conn *websocket.Conn, id identity, size int) *Viewer {
	return &Viewer{
		identity: id,
		hub:      hub,
		conn:     conn,
		queue:    make(chan []byte, size),
		wake:     make(chan struct{}, 1),
	}
}

// Serve runs the viewer until its connection drops or ctx is done. The
// viewer must already be registered with the hub.
func (v *Viewer) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go v.writeLoop(ctx)
	v.readLoop(ctx)
}

func (v *Viewer) readLoop(ctx context.Context) {
	defer func() {
		v.hub.Unregister(v)
		v.conn.Close(websocket.StatusNormalClosure, "")
	}()
	v.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := v.conn.Read(ctx)
		if err != nil {
			if s := websocket.CloseStatus(err); s != websocket.StatusNormalClosure && s != websocket.StatusGoingAway {
				slog.Debug("viewer read", "error", err, "client", v.ClientID)
			}
			return
		}
		msg, err := v.decode(data)
		if err != nil {
			slog.Warn("invalid viewer message", "error", err, "client", v.ClientID)
			v.Send(newMessage(TypeError, ErrorPayload{Message: "malformed message"}))
			continue
		}
		v.hub.handleMessage(v, msg)
	}
}

// decode parses an inbound message and stamps it with the viewer's own
// identity, whatever the sender claimed.
func (v *Viewer) decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	msg.ClientID = v.ClientID
	msg.UserID = v.UserID
	msg.SceneID = v.SceneID
	return &msg, nil
}

func (v *Viewer) writeLoop(ctx context.Context) {
	keepalive := time.NewTicker(pingPeriod)
	defer func() {
		keepalive.Stop()
		v.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var err error
		select {
		case data, ok := <-v.queue:
			if !ok {
				return
			}
			err = v.write(ctx, data)
		case <-v.wake:
			if msg := v.resync(); msg != nil {
				data, _ := json.Marshal(msg)
				err = v.write(ctx, data)
			}
		case <-keepalive.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = v.conn.Ping(pingCtx)
			cancel()
		case <-ctx.Done():
			return
		}
		if err != nil {
			slog.Debug("viewer write", "error", err, "client", v.ClientID)
			return
		}
	}
}

func (v *Viewer) write(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return v.conn.Write(ctx, websocket.MessageText, data)
}

// resync takes the owed pulse, if any, and builds the message announcing it.
func (v *Viewer) resync() *Message {
	pulse := v.owed.Swap(0)
	if pulse == 0 {
		return nil
	}
	msg := newMessage(TypePulseResync, ResyncPayload{Pulse: pulse})
	msg.SceneID = v.SceneID
	msg.Seq = pulse
	return msg
}

// Send queues msg without blocking.
func (v *Viewer) Send(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal message", "error", err)
		return
	}
	v.deliver(msg, data)
}

// deliver queues data, the encoding of msg. When the queue is full, pulse
// damage turns into an owed resync and anything else is dropped.
func (v *Viewer) deliver(msg *Message, data []byte) {
	select {
	case v.queue <- data:
		return
	default:
	}
	if msg.Type != TypePulseDamage {
		slog.Warn("viewer queue full, dropping message", "client", v.ClientID, "type", msg.Type)
		return
	}
	v.owed.Store(max(msg.Seq, 1))
	select {
	case v.wake <- struct{}{}:
	default:
	}
}
