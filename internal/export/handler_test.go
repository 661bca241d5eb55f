package export

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/inamate/compositor/internal/scene"
)

type fixedFrames struct{ err error }

func (f fixedFrames) Frame(context.Context, string) (*image.RGBA, error) {
	if f.err != nil {
		return nil, f.err
	}
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.SetRGBA(0, 0, color.RGBA{R: 0xff, A: 0xff})
	return img, nil
}

type access map[string]error

func (a access) Authorize(_ context.Context, sceneID, _ string) error { return a[sceneID] }

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	r := mux.NewRouter()
	r.HandleFunc("/api/scenes/{sceneId}/frame.png", h.Frame)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestFrame(t *testing.T) {
	acl := access{"scene_missing": scene.ErrNotFound, "scene_private": scene.ErrForbidden}
	tests := []struct {
		name   string
		frames FrameSource
		path   string
		want   int
		size   image.Point
	}{
		{"full size", fixedFrames{}, "/api/scenes/scene_1/frame.png", http.StatusOK, image.Pt(40, 20)},
		{"half size", fixedFrames{}, "/api/scenes/scene_1/frame.png?scale=0.5", http.StatusOK, image.Pt(20, 10)},
		{"bad scale", fixedFrames{}, "/api/scenes/scene_1/frame.png?scale=2", http.StatusBadRequest, image.Point{}},
		{"missing", fixedFrames{}, "/api/scenes/scene_missing/frame.png", http.StatusNotFound, image.Point{}},
		{"private", fixedFrames{}, "/api/scenes/scene_private/frame.png", http.StatusForbidden, image.Point{}},
		{"render error", fixedFrames{err: errors.New("boom")}, "/api/scenes/scene_1/frame.png", http.StatusInternalServerError, image.Point{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(NewHandler(tt.frames, acl), tt.path)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
			if tt.want != http.StatusOK {
				return
			}
			if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
				t.Errorf("content type = %q", ct)
			}
			img, err := png.Decode(rec.Body)
			if err != nil {
				t.Fatal(err)
			}
			if img.Bounds().Size() != tt.size {
				t.Errorf("size = %v, want %v", img.Bounds().Size(), tt.size)
			}
		})
	}
}
