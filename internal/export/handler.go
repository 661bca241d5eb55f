// Package export renders scene frames for download.
package export

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"golang.org/x/image/draw"

	"github.com/inamate/compositor/internal/auth"
	"github.com/inamate/compositor/internal/scene"
)

// FrameSource produces the current picture of a scene.
type FrameSource interface {
	Frame(ctx context.Context, sceneID string) (*image.RGBA, error)
}

// Authorizer decides who may see a scene.
type Authorizer interface {
	Authorize(ctx context.Context, sceneID, userID string) error
}

type Handler struct {
	frames FrameSource
	access Authorizer
}

func NewHandler(frames FrameSource, access Authorizer) *Handler {
	return &Handler{frames: frames, access: access}
}

// Frame handles GET /api/scenes/{sceneId}/frame.png. An optional scale
// query parameter in (0, 1] shrinks the image.
func (h *Handler) Frame(w http.ResponseWriter, r *http.Request) {
	sceneID := mux.Vars(r)["sceneId"]
	userID := auth.UserIDFromContext(r.Context())

	scale := 1.0
	if v := r.URL.Query().Get("scale"); v != "" {
		s, err := strconv.ParseFloat(v, 64)
		if err != nil || s <= 0 || s > 1 {
			auth.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "scale must be in (0, 1]"})
			return
		}
		scale = s
	}

	if err := h.access.Authorize(r.Context(), sceneID, userID); err != nil {
		switch {
		case errors.Is(err, scene.ErrNotFound):
			auth.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		case errors.Is(err, scene.ErrForbidden):
			auth.WriteJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		default:
			slog.Error("authorize frame export", "scene", sceneID, "error", err)
			auth.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
		return
	}

	img, err := h.frames.Frame(r.Context(), sceneID)
	if err != nil {
		slog.Error("render frame", "scene", sceneID, "error", err)
		auth.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "render failed"})
		return
	}

	var out image.Image = img
	if scale < 1 {
		b := img.Bounds()
		dst := image.NewRGBA(image.Rect(0, 0, max(int(float64(b.Dx())*scale), 1), max(int(float64(b.Dy())*scale), 1)))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		slog.Error("encode frame", "scene", sceneID, "error", err)
		auth.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "encode failed"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
