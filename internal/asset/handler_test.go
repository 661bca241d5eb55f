package asset

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
)

func pngBytes(t *testing.T, alpha uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 4))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 0xff, alpha
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func upload(t *testing.T, h *Handler, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="pic.png"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/assets/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.Upload(rec, req)
	return rec
}

func TestUploadAndPaintSource(t *testing.T) {
	h := NewHandler(t.TempDir())

	tests := []struct {
		name       string
		alpha      uint8
		wantOpaque bool
	}{
		{"opaque", 0xff, true},
		{"translucent", 0x80, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := upload(t, h, "image/png", pngBytes(t, tt.alpha))
			if rec.Code != http.StatusOK {
				t.Fatalf("status %d: %s", rec.Code, rec.Body)
			}
			var resp UploadResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Width != 8 || resp.Height != 4 || resp.Type != "png" || resp.Opaque != tt.wantOpaque {
				t.Errorf("response = %+v", resp)
			}

			img, ok := h.Image(resp.ID)
			if !ok {
				t.Fatal("uploaded asset not decodable")
			}
			if img.Bounds().Dx() != 8 {
				t.Errorf("bounds = %v", img.Bounds())
			}
			if _, _, _, a := img.At(1, 1).RGBA(); a>>8 != uint32(tt.alpha) {
				t.Errorf("alpha = %d, want %d", a>>8, tt.alpha)
			}

			srv := h.Serve()
			get := httptest.NewRecorder()
			srv.ServeHTTP(get, httptest.NewRequest(http.MethodGet, resp.URL, nil))
			if get.Code != http.StatusOK || get.Header().Get("Cache-Control") == "" {
				t.Errorf("serve status %d, headers %v", get.Code, get.Header())
			}

			if err := h.Delete(resp.ID); err != nil {
				t.Fatal(err)
			}
			if _, ok := h.Image(resp.ID); ok {
				t.Error("deleted asset still available")
			}
		})
	}
}

func TestUploadRejects(t *testing.T) {
	h := NewHandler(t.TempDir())
	if rec := upload(t, h, "text/plain", []byte("hello")); rec.Code != http.StatusBadRequest {
		t.Errorf("text upload status = %d", rec.Code)
	}
	if rec := upload(t, h, "image/png", []byte("not a png")); rec.Code != http.StatusBadRequest {
		t.Errorf("corrupt upload status = %d", rec.Code)
	}
}

func TestImageRejectsForeignIDs(t *testing.T) {
	h := NewHandler(t.TempDir())
	for _, id := range []string{"../secret", "node_01h2xcejqtf2nbrexx3vqjhp41", ""} {
		if _, ok := h.Image(id); ok {
			t.Errorf("Image(%q) succeeded", id)
		}
	}
	if err := h.Delete("../secret"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete err = %v", err)
	}
}

func TestIsOpaque(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	if !IsOpaque(gray) {
		t.Error("gray image not opaque")
	}
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 1, A: 0xff})
	img.Set(1, 0, color.NRGBA{R: 1, A: 0xfe})
	// Hide the Opaque method so the pixel scan runs.
	wrapped := struct{ image.Image }{img}
	if IsOpaque(wrapped) {
		t.Error("translucent wrapped image reported opaque")
	}
}
