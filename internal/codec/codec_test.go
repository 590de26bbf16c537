package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/archofall1/ai-ap/internal/models"
)

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestEncodeDeclaresJPEG(t *testing.T) {
	raw := []byte("not really an image")
	uri := Encode(raw)
	prefix := "data:image/jpeg;base64,"
	if !strings.HasPrefix(uri, prefix) {
		t.Fatalf("unexpected prefix: %s", uri)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Fatalf("payload mismatch")
	}
}

func TestBuildUserContent(t *testing.T) {
	plain := BuildUserContent("hello", nil)
	if plain.Kind() != models.KindText || plain.Text() != "hello" {
		t.Fatalf("expected text content, got %v", plain.Kind())
	}

	mixed := BuildUserContent("what is this?", []byte{1, 2, 3})
	parts := mixed.PartList()
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0].Kind != models.PartImage || parts[1].Kind != models.PartText {
		t.Fatalf("image part must precede text part: %+v", parts)
	}
	if parts[1].Text != "what is this?" {
		t.Fatalf("unexpected text part %q", parts[1].Text)
	}
}

func TestDownscaleFitsBounds(t *testing.T) {
	src := makePNG(t, 1600, 400)
	out, err := Downscale(src, 800, 85)
	if err != nil {
		t.Fatalf("downscale: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "jpeg" {
		t.Fatalf("expected jpeg output, got %s", format)
	}
	if cfg.Width != 800 || cfg.Height != 200 {
		t.Fatalf("expected 800x200, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestDownscaleKeepsSmallImages(t *testing.T) {
	src := makePNG(t, 64, 32)
	out, err := Downscale(src, 800, 85)
	if err != nil {
		t.Fatalf("downscale: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "jpeg" || cfg.Width != 64 || cfg.Height != 32 {
		t.Fatalf("unexpected output %s %dx%d", format, cfg.Width, cfg.Height)
	}
}

func TestDownscaleRejectsGarbage(t *testing.T) {
	_, err := Downscale([]byte("garbage"), 800, 85)
	if !errors.Is(err, ErrUndecodableImage) {
		t.Fatalf("expected ErrUndecodableImage, got %v", err)
	}
}

func TestPrepare(t *testing.T) {
	src := makePNG(t, 1000, 1000)
	content, err := Prepare("describe", src, Options{Downscale: true, MaxDim: 100})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !content.HasImage() {
		t.Fatalf("expected image content")
	}

	if _, err := Prepare("describe", []byte("bad"), Options{Downscale: true}); err == nil {
		t.Fatalf("expected error for undecodable upload")
	}

	// without downscale the bytes pass through untouched
	content, err = Prepare("describe", []byte("bad"), Options{})
	if err != nil {
		t.Fatalf("prepare without downscale: %v", err)
	}
	if got := content.PartList()[0].URL; got != Encode([]byte("bad")) {
		t.Fatalf("unexpected data uri %s", got)
	}
}

func TestAllowedMediaType(t *testing.T) {
	if !AllowedMediaType(DetectMediaType(makePNG(t, 2, 2))) {
		t.Fatalf("png should be allowed")
	}
	for _, ct := range []string{"image/gif", "text/plain; charset=utf-8", "application/pdf"} {
		if AllowedMediaType(ct) {
			t.Fatalf("%s should be rejected", ct)
		}
	}
}
