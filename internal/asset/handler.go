// Package asset stores uploaded images and serves them to browsers and to
// the raster painter.
package asset

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/inamate/compositor/internal/typeid"
)

const maxUploadSize = 10 << 20 // 10MB

// maxCached bounds the decoded images kept in memory.
const maxCached = 64

var acceptedTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp", "image/bmp"}

var ErrNotFound = errors.New("asset not found")

// UploadResponse is returned from the upload endpoint.
type UploadResponse struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	// Opaque is true when every pixel has full alpha; image nodes showing
	// the asset can then hide what is behind them.
	Opaque bool `json:"opaque"`
}

// Handler serves asset upload and retrieval endpoints and decodes stored
// assets for painting.
type Handler struct {
	dir string // directory to store asset files

	mu    sync.Mutex
	cache map[string]image.Image
}

// NewHandler creates a new asset handler that stores files in dir.
func NewHandler(dir string) *Handler {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("create asset dir", "error", err, "dir", dir)
	}
	return &Handler{dir: dir, cache: make(map[string]image.Image)}
}

// Upload handles POST /assets/upload (multipart form with "file" field).
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "file too large (max 10MB)", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !accepted(contentType) {
		http.Error(w, "only PNG, JPEG, GIF, WebP and BMP images are supported", http.StatusBadRequest)
		return
	}

	img, format, err := image.Decode(file)
	if err != nil {
		http.Error(w, "invalid image: "+err.Error(), http.StatusBadRequest)
		return
	}

	assetID := typeid.Asset.New()
	if err := h.store(assetID, img); err != nil {
		slog.Error("store asset", "error", err)
		http.Error(w, "failed to save file", http.StatusInternalServerError)
		return
	}

	bounds := img.Bounds()
	resp := UploadResponse{
		ID:     assetID,
		URL:    fmt.Sprintf("/assets/%s.png", assetID),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Type:   format,
		Name:   header.Filename,
		Opaque: IsOpaque(img),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// Serve returns an http.Handler that serves stored asset files with caching headers.
func (h *Handler) Serve() http.Handler {
	fs := http.FileServer(http.Dir(h.dir))
	return http.StripPrefix("/assets/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Asset IDs are unique, so files are immutable
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		fs.ServeHTTP(w, r)
	}))
}

// Image decodes a stored asset. It implements raster.AssetSource.
func (h *Handler) Image(id string) (image.Image, bool) {
	h.mu.Lock()
	img, ok := h.cache[id]
	h.mu.Unlock()
	if ok {
		return img, true
	}

	img, err := h.load(id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("decode asset", "asset", id, "error", err)
		}
		return nil, false
	}

	h.mu.Lock()
	if len(h.cache) >= maxCached {
		for k := range h.cache {
			delete(h.cache, k)
			break
		}
	}
	h.cache[id] = img
	h.mu.Unlock()
	return img, true
}

// Delete removes an asset file from disk.
func (h *Handler) Delete(assetID string) error {
	path, err := h.path(assetID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", assetID, ErrNotFound)
		}
		return err
	}
	h.mu.Lock()
	delete(h.cache, assetID)
	h.mu.Unlock()
	return nil
}

func (h *Handler) store(assetID string, img image.Image) error {
	path, err := h.path(assetID)
	if err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create asset file: %w", err)
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		os.Remove(path)
		return fmt.Errorf("encode png: %w", err)
	}
	return out.Close()
}

func (h *Handler) load(assetID string) (image.Image, error) {
	path, err := h.path(assetID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", assetID, ErrNotFound)
		}
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

// path maps an asset ID to its file, refusing IDs that are not asset IDs.
func (h *Handler) path(assetID string) (string, error) {
	if err := typeid.Asset.Validate(assetID); err != nil {
		return "", fmt.Errorf("%s: %w", assetID, ErrNotFound)
	}
	return filepath.Join(h.dir, assetID+".png"), nil
}

func accepted(contentType string) bool {
	for _, t := range acceptedTypes {
		if strings.HasPrefix(contentType, t) {
			return true
		}
	}
	return false
}

// IsOpaque reports whether every pixel of img has full alpha.
func IsOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}
