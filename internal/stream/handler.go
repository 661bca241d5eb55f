package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/inamate/compositor/internal/auth"
	"github.com/inamate/compositor/internal/scene"
)

// TokenValidator resolves a bearer token to a user ID.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// userLookup is implemented by validators that also know display names.
type userLookup interface {
	GetUser(ctx context.Context, userID string) (*auth.User, error)
}

// Authorizer decides who may watch a scene; an empty user is anonymous.
type Authorizer interface {
	Authorize(ctx context.Context, sceneID, userID string) error
}

// Handler upgrades /ws/scene/{sceneId} requests. Public scenes may be
// watched anonymously; others need a token query parameter.
type Handler struct {
	hub     *Hub
	tokens  TokenValidator
	access  Authorizer
	origins []string
}

func NewHandler(hub *Hub, tokens TokenValidator, access Authorizer, origins []string) *Handler {
	return &Handler{hub: hub, tokens: tokens, access: access, origins: origins}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sceneID := mux.Vars(r)["sceneId"]
	if sceneID == "" {
		auth.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "scene id required"})
		return
	}

	userID := ""
	if token := r.URL.Query().Get("token"); token != "" {
		id, err := h.tokens.ValidateToken(token)
		if err != nil {
			auth.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		userID = id
	}

	if err := h.access.Authorize(r.Context(), sceneID, userID); err != nil {
		switch {
		case errors.Is(err, scene.ErrNotFound):
			auth.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		case errors.Is(err, scene.ErrForbidden):
			auth.WriteJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		default:
			slog.Error("authorize viewer", "scene", sceneID, "error", err)
			auth.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	clientID := uuid.NewString()
	displayName := "viewer-" + clientID[:8]
	if userID == "" {
		userID = "anon-" + clientID[:8]
	} else {
		displayName = userID
		if users, ok := h.tokens.(userLookup); ok {
			if u, err := users.GetUser(r.Context(), userID); err == nil {
				displayName = u.DisplayName
			}
		}
	}

	ctx := r.Context()
	if err := h.hub.operator.Join(ctx, sceneID); err != nil {
		slog.Error("start scene for viewer", "scene", sceneID, "error", err)
		conn.Close(websocket.StatusInternalError, "scene unavailable")
		return
	}
	defer h.hub.operator.Leave(sceneID)

	viewer := newViewer(h.hub, conn, identity{
		ClientID:    clientID,
		UserID:      userID,
		DisplayName: displayName,
		SceneID:     sceneID,
	}, queueSize)
	h.hub.Register(viewer)
	viewer.Serve(ctx)
}
