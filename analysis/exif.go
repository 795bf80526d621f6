package analysis

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// ErrMetadataRead is wrapped by every error ExtractMetadata returns.
var ErrMetadataRead = errors.New("metadata read failed")

func defaultExifMap() ExifMap {
	return ExifMap{
		KeyFormat:          "unknown",
		KeyMode:            "unknown",
		KeySize:            [2]int{0, 0},
		KeyHasTransparency: false,
	}
}

// ExtractMetadata reads the container header and EXIF block of the image at
// path. The returned map is always usable. A non-nil error means reading
// failed and the map holds defaults or partial data; a file without EXIF is
// not an error.
func ExtractMetadata(path string) (ExifMap, error) {
	m := defaultExifMap()

	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("%w: %v", ErrMetadataRead, err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return m, fmt.Errorf("%w: decode header: %v", ErrMetadataRead, err)
	}
	mode, transparent := colorMode(cfg.ColorModel)
	m[KeyFormat] = strings.ToUpper(format)
	m[KeyMode] = mode
	m[KeySize] = [2]int{cfg.Width, cfg.Height}
	m[KeyHasTransparency] = transparent

	// Only JPEG and TIFF carry an EXIF block goexif can locate.
	if format != "jpeg" && format != "tiff" {
		return m, nil
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil && exif.IsCriticalError(err) {
		if noExif(err) {
			return m, nil
		}
		return m, fmt.Errorf("%w: decode exif: %v", ErrMetadataRead, err)
	}
	// Non-critical errors leave the tags that did parse.
	if x != nil {
		x.Walk(tagCollector(m))
	}
	if err != nil {
		return m, fmt.Errorf("%w: partial exif: %v", ErrMetadataRead, err)
	}
	return m, nil
}

func noExif(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		strings.Contains(err.Error(), "failed to find exif intro marker")
}

type tagCollector ExifMap

func (c tagCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	c[string(name)] = tagValue(tag)
	return nil
}

// tagValue converts a raw tag. Single values stay scalar, multiple values
// become slices. Rationals are divided out.
func tagValue(tag *tiff.Tag) any {
	n := int(tag.Count)

	switch tag.Format() {
	case tiff.StringVal:
		s, _ := tag.StringVal()
		return strings.TrimRight(s, " ")

	case tiff.IntVal:
		vals := make([]int64, 0, n)
		for i := 0; i < n; i++ {
			v, err := tag.Int64(i)
			if err != nil {
				break
			}
			vals = append(vals, v)
		}
		if len(vals) == 1 {
			return vals[0]
		}
		return vals

	case tiff.RatVal:
		vals := make([]float64, 0, n)
		for i := 0; i < n; i++ {
			num, den, err := tag.Rat2(i)
			if err != nil {
				break
			}
			if den == 0 {
				vals = append(vals, 0)
				continue
			}
			vals = append(vals, float64(num)/float64(den))
		}
		if len(vals) == 1 {
			return vals[0]
		}
		return vals

	case tiff.FloatVal:
		vals := make([]float64, 0, n)
		for i := 0; i < n; i++ {
			v, err := tag.Float(i)
			if err != nil {
				break
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			vals = append(vals, v)
		}
		if len(vals) == 1 {
			return vals[0]
		}
		return vals
	}

	return bytesValue(tag.Val)
}

// bytesValue keeps undefined tags readable: valid UTF-8 is returned as text,
// anything else as a quoted escape of the raw bytes.
func bytesValue(b []byte) string {
	trimmed := bytes.TrimRight(b, "\x00")
	if utf8.Valid(trimmed) {
		return string(trimmed)
	}
	return fmt.Sprintf("%q", b)
}

// colorMode names a colour model the way image tools usually report it and
// reports whether it can carry transparency.
func colorMode(model color.Model) (string, bool) {
	if p, ok := model.(color.Palette); ok {
		for _, c := range p {
			if _, _, _, a := c.RGBA(); a < 0xffff {
				return "P", true
			}
		}
		return "P", false
	}

	switch model {
	case color.GrayModel:
		return "L", false
	case color.Gray16Model:
		return "I;16", false
	case color.RGBAModel, color.RGBA64Model, color.YCbCrModel:
		return "RGB", false
	case color.NRGBAModel, color.NRGBA64Model, color.NYCbCrAModel:
		return "RGBA", true
	case color.CMYKModel:
		return "CMYK", false
	case color.AlphaModel, color.Alpha16Model:
		return "LA", true
	}
	return "unknown", false
}
