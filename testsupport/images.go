// Package testsupport builds fixture images for tests across packages.
package testsupport

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// EXIF tag ids used by fixtures.
const (
	TagMake              uint16 = 0x010F
	TagModel             uint16 = 0x0110
	TagOrientation       uint16 = 0x0112
	TagSoftware          uint16 = 0x0131
	TagDateTime          uint16 = 0x0132
	TagExifIFDPointer    uint16 = 0x8769
	TagDateTimeOriginal  uint16 = 0x9003
	TagDateTimeDigitized uint16 = 0x9004
	TagUserComment       uint16 = 0x9286
)

const (
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeUndefined = 7
)

// ExifTag is one fixture entry. ASCII wins over Undefined, which wins over
// Short. InExifIFD places the tag in the Exif sub-IFD instead of IFD0.
type ExifTag struct {
	ID        uint16
	ASCII     string
	Undefined []byte
	Short     uint16
	InExifIFD bool

	long uint32
}

// CameraTags is a complete set of camera metadata as written by a phone.
func CameraTags() []ExifTag {
	return []ExifTag{
		{ID: TagMake, ASCII: "Canon"},
		{ID: TagModel, ASCII: "Canon EOS R6"},
		{ID: TagSoftware, ASCII: "Firmware Version 1.8.1"},
		{ID: TagDateTime, ASCII: "2024:05:01 10:12:33"},
		{ID: TagOrientation, Short: 1},
		{ID: TagDateTimeOriginal, ASCII: "2024:05:01 10:12:33", InExifIFD: true},
		{ID: TagDateTimeDigitized, ASCII: "2024:05:01 10:12:33", InExifIFD: true},
	}
}

// Pattern returns an RGBA image with a deterministic textured pattern.
func Pattern(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x + y) % 256),
				G: uint8((x * 2) % 256),
				B: uint8((y * 2) % 256),
				A: 255,
			})
		}
	}
	return img
}

// Uniform returns a single-colour image.
func Uniform(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// EncodeJPEG encodes img at quality 95.
func EncodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG returns a w x h patterned JPEG without metadata.
func JPEG(w, h int) []byte {
	return EncodeJPEG(Pattern(w, h))
}

// WithExif splices an EXIF APP1 segment right after the SOI marker of an
// encoded JPEG.
func WithExif(jpegData []byte, tags []ExifTag) []byte {
	payload := append([]byte("Exif\x00\x00"), buildTIFF(tags)...)

	out := make([]byte, 0, len(jpegData)+len(payload)+4)
	out = append(out, 0xFF, 0xD8, 0xFF, 0xE1)
	out = binary.BigEndian.AppendUint16(out, uint16(len(payload)+2))
	out = append(out, payload...)
	return append(out, jpegData[2:]...)
}

// JPEGWithExif returns a w x h patterned JPEG carrying the given tags.
func JPEGWithExif(w, h int, tags []ExifTag) []byte {
	return WithExif(JPEG(w, h), tags)
}

// WriteFile writes data under t.TempDir and returns the path.
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
	return path
}

func buildTIFF(tags []ExifTag) []byte {
	var ifd0, sub []ExifTag
	for _, tag := range tags {
		if tag.InExifIFD {
			sub = append(sub, tag)
		} else {
			ifd0 = append(ifd0, tag)
		}
	}
	if len(sub) > 0 {
		ifd0 = append(ifd0, ExifTag{ID: TagExifIFDPointer})
	}
	sort.Slice(ifd0, func(i, j int) bool { return ifd0[i].ID < ifd0[j].ID })
	sort.Slice(sub, func(i, j int) bool { return sub[i].ID < sub[j].ID })

	const ifd0Start = 8
	subStart := ifd0Start + ifdSize(ifd0)
	for i := range ifd0 {
		if ifd0[i].ID == TagExifIFDPointer {
			ifd0[i].long = uint32(subStart)
		}
	}

	buf := []byte{'I', 'I', 0x2A, 0x00}
	buf = binary.LittleEndian.AppendUint32(buf, ifd0Start)
	buf = appendIFD(buf, ifd0, ifd0Start)
	if len(sub) > 0 {
		buf = appendIFD(buf, sub, subStart)
	}
	return buf
}

func encodeTag(tag ExifTag) (uint16, uint32, []byte) {
	switch {
	case tag.ID == TagExifIFDPointer:
		return typeLong, 1, binary.LittleEndian.AppendUint32(nil, tag.long)
	case tag.ASCII != "":
		v := append([]byte(tag.ASCII), 0)
		return typeASCII, uint32(len(v)), v
	case tag.Undefined != nil:
		return typeUndefined, uint32(len(tag.Undefined)), tag.Undefined
	default:
		return typeShort, 1, binary.LittleEndian.AppendUint16(nil, tag.Short)
	}
}

func ifdSize(tags []ExifTag) int {
	size := 2 + 12*len(tags) + 4
	for _, tag := range tags {
		_, _, payload := encodeTag(tag)
		if len(payload) > 4 {
			size += len(payload) + len(payload)%2
		}
	}
	return size
}

func appendIFD(buf []byte, tags []ExifTag, start int) []byte {
	le := binary.LittleEndian
	dataStart := start + 2 + 12*len(tags) + 4

	var data []byte
	buf = le.AppendUint16(buf, uint16(len(tags)))
	for _, tag := range tags {
		typ, count, payload := encodeTag(tag)
		buf = le.AppendUint16(buf, tag.ID)
		buf = le.AppendUint16(buf, typ)
		buf = le.AppendUint32(buf, count)
		if len(payload) <= 4 {
			field := make([]byte, 4)
			copy(field, payload)
			buf = append(buf, field...)
			continue
		}
		buf = le.AppendUint32(buf, uint32(dataStart+len(data)))
		data = append(data, payload...)
		if len(payload)%2 == 1 {
			data = append(data, 0)
		}
	}
	buf = le.AppendUint32(buf, 0)
	return append(buf, data...)
}
