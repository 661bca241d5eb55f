// Package stream connects scene viewers over websockets: presence, viewer
// operations and the damage of every painted pulse.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/inamate/compositor/internal/session"
	"github.com/inamate/compositor/internal/typeid"
)

// Operator runs the scenes a hub streams. session.Manager implements it.
type Operator interface {
	Join(ctx context.Context, sceneID string) error
	Leave(sceneID string)
	Apply(sceneID string, op session.Operation) (int64, error)
	Document(sceneID string) ([]byte, int64, error)
}

type Room struct {
	sceneID  string
	clients  map[string]*Viewer // clientID -> viewer
	presence *PresenceManager
}

func NewRoom(sceneID string) *Room {
	return &Room{
		sceneID:  sceneID,
		clients:  make(map[string]*Viewer),
		presence: NewPresenceManager(),
	}
}

type Hub struct {
	operator   Operator
	mu         sync.RWMutex
	rooms      map[string]*Room // sceneID -> room
	register   chan *Viewer
	unregister chan *Viewer
	done       chan struct{}
}

func NewHub(operator Operator) *Hub {
	return &Hub{
		operator:   operator,
		rooms:      make(map[string]*Room),
		register:   make(chan *Viewer),
		unregister: make(chan *Viewer),
		done:       make(chan struct{}),
	}
}

// Run processes joins and leaves until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case viewer := <-h.register:
			h.addViewer(viewer)
		case viewer := <-h.unregister:
			h.removeViewer(viewer)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) Register(viewer *Viewer) {
	select {
	case h.register <- viewer:
	case <-h.done:
	}
}

func (h *Hub) Unregister(viewer *Viewer) {
	select {
	case h.unregister <- viewer:
	case <-h.done:
	}
}

// Clients returns the number of connected clients of a scene.
func (h *Hub) Clients(sceneID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room, ok := h.rooms[sceneID]; ok {
		return len(room.clients)
	}
	return 0
}

func (h *Hub) addViewer(viewer *Viewer) {
	h.mu.Lock()
	room, ok := h.rooms[viewer.SceneID]
	if !ok {
		room = NewRoom(viewer.SceneID)
		h.rooms[viewer.SceneID] = room
	}
	room.clients[viewer.ClientID] = viewer
	h.mu.Unlock()

	viewer.Send(newMessage(TypeWelcome, WelcomePayload{
		ClientID:    viewer.ClientID,
		UserID:      viewer.UserID,
		DisplayName: viewer.DisplayName,
	}))
	if doc, seq, err := h.operator.Document(viewer.SceneID); err == nil {
		viewer.Send(&Message{Type: TypeDocSync, SceneID: viewer.SceneID, Seq: seq, Payload: doc})
	} else {
		slog.Warn("document unavailable for new viewer", "scene", viewer.SceneID, "error", err)
	}
	viewer.Send(room.presence.StateMessage())

	joinMsg := newMessage(TypePresenceJoin, PresenceJoinPayload{
		UserID:      viewer.UserID,
		DisplayName: viewer.DisplayName,
	})
	joinMsg.UserID = viewer.UserID
	joinMsg.ClientID = viewer.ClientID
	h.broadcastToRoom(viewer.SceneID, joinMsg, viewer.ClientID)

	slog.Info("viewer joined", "user", viewer.UserID, "scene", viewer.SceneID)
}

func (h *Hub) removeViewer(viewer *Viewer) {
	h.mu.Lock()
	room, ok := h.rooms[viewer.SceneID]
	if !ok || room.clients[viewer.ClientID] != viewer {
		h.mu.Unlock()
		return
	}

	delete(room.clients, viewer.ClientID)
	close(viewer.queue)
	room.presence.Remove(viewer.ClientID)

	if len(room.clients) == 0 {
		delete(h.rooms, viewer.SceneID)
	}
	h.mu.Unlock()

	leaveMsg := newMessage(TypePresenceLeave, PresenceLeavePayload{UserID: viewer.UserID})
	leaveMsg.UserID = viewer.UserID
	leaveMsg.ClientID = viewer.ClientID
	h.broadcastToRoom(viewer.SceneID, leaveMsg, "")

	slog.Info("viewer left", "user", viewer.UserID, "scene", viewer.SceneID)
}

func (h *Hub) handleMessage(sender *Viewer, msg *Message) {
	switch msg.Type {
	case TypePresenceUpdate:
		h.handlePresenceUpdate(sender, msg)
	case TypeOpSubmit:
		h.handleOpSubmit(sender, msg)
	default:
		slog.Warn("unknown message type", "type", msg.Type, "viewer", sender.ClientID)
		sender.Send(newMessage(TypeError, ErrorPayload{Message: "unknown message type " + msg.Type}))
	}
}

func (h *Hub) handlePresenceUpdate(sender *Viewer, msg *Message) {
	var presence PresencePayload
	if err := json.Unmarshal(msg.Payload, &presence); err != nil {
		slog.Warn("invalid presence payload", "error", err)
		return
	}
	presence.DisplayName = sender.DisplayName

	h.mu.RLock()
	room, ok := h.rooms[sender.SceneID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	room.presence.Update(sender.ClientID, &presence)

	outMsg := newMessage(TypePresenceUpdate, presence)
	outMsg.UserID = sender.UserID
	outMsg.ClientID = sender.ClientID
	h.broadcastToRoom(sender.SceneID, outMsg, sender.ClientID)
}

func (h *Hub) handleOpSubmit(sender *Viewer, msg *Message) {
	var submit OperationSubmitPayload
	if err := json.Unmarshal(msg.Payload, &submit); err != nil {
		sender.Send(newMessage(TypeOpNack, OperationNackPayload{Reason: "invalid operation payload"}))
		return
	}
	op := submit.Operation
	if op.ID == "" {
		op.ID = typeid.Op.New()
	}

	seq, err := h.operator.Apply(sender.SceneID, op)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, session.ErrNotRunning) {
			reason = "scene is not running"
		}
		slog.Debug("operation rejected", "op", op.ID, "type", op.Type, "error", err)
		sender.Send(newMessage(TypeOpNack, OperationNackPayload{OperationID: op.ID, Reason: reason}))
		return
	}

	ack := newMessage(TypeOpAck, OperationAckPayload{
		OperationID:     op.ID,
		ServerSeq:       seq,
		ServerTimestamp: session.ServerTimestamp(),
	})
	ack.Seq = seq
	sender.Send(ack)

	out := newMessage(TypeOpBroadcast, OperationBroadcastPayload{
		Operation: op,
		UserID:    sender.UserID,
		ServerSeq: seq,
	})
	out.Seq = seq
	out.UserID = sender.UserID
	h.broadcastToRoom(sender.SceneID, out, sender.ClientID)
}

// PublishFrame sends the damage of a painted pulse to everyone watching
// the scene. It implements session.FramePublisher.
func (h *Hub) PublishFrame(sceneID string, f session.FrameInfo) {
	msg := newMessage(TypePulseDamage, f)
	msg.SceneID = sceneID
	msg.Seq = int64(f.Pulse)
	h.broadcastToRoom(sceneID, msg, "")
}

func (h *Hub) broadcastToRoom(sceneID string, msg *Message, excludeClientID string) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal message", "error", err)
		return
	}

	// Sends never block, so they happen under the read lock; removeViewer
	// closes send channels under the write lock.
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[sceneID]
	if !ok {
		return
	}
	for _, c := range room.clients {
		if c.ClientID != excludeClientID {
			c.deliver(msg, data)
		}
	}
}
