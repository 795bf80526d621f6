package analysis

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"pixeltruth/testsupport"
)

func TestExtractMetadataCameraJPEG(t *testing.T) {
	path := testsupport.WriteFile(t, "camera.jpg", testsupport.JPEGWithExif(640, 480, testsupport.CameraTags()))

	m, err := ExtractMetadata(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantStrings := map[string]string{
		KeyFormat:          "JPEG",
		KeyMode:            "RGB",
		"Make":             "Canon",
		"Model":            "Canon EOS R6",
		"DateTime":         "2024:05:01 10:12:33",
		"DateTimeOriginal": "2024:05:01 10:12:33",
	}
	for k, want := range wantStrings {
		if got := m.String(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if w, h, ok := m.Size(); !ok || w != 640 || h != 480 {
		t.Errorf("size = %dx%d (%v), want 640x480", w, h, ok)
	}
	if got, ok := m["Orientation"].(int64); !ok || got != 1 {
		t.Errorf("Orientation = %#v, want int64(1)", m["Orientation"])
	}
	if m[KeyHasTransparency] != false {
		t.Errorf("has_transparency = %v, want false", m[KeyHasTransparency])
	}
}

func TestExtractMetadataWithoutExif(t *testing.T) {
	path := testsupport.WriteFile(t, "plain.jpg", testsupport.JPEG(320, 200))

	m, err := ExtractMetadata(path)
	if err != nil {
		t.Fatalf("missing EXIF must not be an error, got %v", err)
	}
	if len(m) != 4 {
		t.Errorf("expected only the 4 synthesized keys, got %v", m)
	}
	if m.String(KeyFormat) != "JPEG" {
		t.Errorf("format = %q, want JPEG", m.String(KeyFormat))
	}
}

func TestExtractMetadataPNGTransparency(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 8))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	path := testsupport.WriteFile(t, "alpha.png", testsupport.EncodePNG(img))

	m, err := ExtractMetadata(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.String(KeyFormat) != "PNG" || m.String(KeyMode) != "RGBA" {
		t.Errorf("format/mode = %s/%s, want PNG/RGBA", m.String(KeyFormat), m.String(KeyMode))
	}
	if m[KeyHasTransparency] != true {
		t.Error("expected has_transparency")
	}
	if w, h, _ := m.Size(); w != 16 || h != 8 {
		t.Errorf("size = %dx%d, want 16x8", w, h)
	}
}

func TestExtractMetadataGrayPNG(t *testing.T) {
	path := testsupport.WriteFile(t, "gray.png", testsupport.EncodePNG(image.NewGray(image.Rect(0, 0, 4, 4))))

	m, err := ExtractMetadata(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.String(KeyMode) != "L" {
		t.Errorf("mode = %q, want L", m.String(KeyMode))
	}
}

func TestExtractMetadataUndefinedTags(t *testing.T) {
	raw := []byte{0xff, 0xfe, 0x00, 0x01}
	tags := append(testsupport.CameraTags(), testsupport.ExifTag{
		ID:        testsupport.TagUserComment,
		Undefined: raw,
		InExifIFD: true,
	})
	path := testsupport.WriteFile(t, "comment.jpg", testsupport.JPEGWithExif(64, 48, tags))

	m, err := ExtractMetadata(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := fmt.Sprintf("%q", raw)
	if got := m.String("UserComment"); got != want {
		t.Errorf("UserComment = %q, want %q", got, want)
	}
}

func TestExtractMetadataReadFailures(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.jpg") }},
		{"not an image", func(t *testing.T) string {
			return testsupport.WriteFile(t, "junk.jpg", []byte("this is plain text"))
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := ExtractMetadata(tc.path(t))
			if !errors.Is(err, ErrMetadataRead) {
				t.Fatalf("expected ErrMetadataRead, got %v", err)
			}
			if m.String(KeyFormat) != "unknown" || m.String(KeyMode) != "unknown" {
				t.Errorf("expected defaults, got %v", m)
			}
			if w, h, ok := m.Size(); !ok || w != 0 || h != 0 {
				t.Errorf("size = %dx%d, want 0x0", w, h)
			}
		})
	}
}

func TestColorMode(t *testing.T) {
	opaque := color.Palette{color.Black, color.White}
	withAlpha := color.Palette{color.Black, color.Transparent}

	tests := []struct {
		name        string
		model       color.Model
		mode        string
		transparent bool
	}{
		{"gray", color.GrayModel, "L", false},
		{"ycbcr", color.YCbCrModel, "RGB", false},
		{"nrgba", color.NRGBAModel, "RGBA", true},
		{"cmyk", color.CMYKModel, "CMYK", false},
		{"opaque palette", opaque, "P", false},
		{"palette with alpha", withAlpha, "P", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mode, transparent := colorMode(tc.model)
			if mode != tc.mode || transparent != tc.transparent {
				t.Errorf("colorMode() = %s/%v, want %s/%v", mode, transparent, tc.mode, tc.transparent)
			}
		})
	}
}
