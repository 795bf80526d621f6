// Package imaging holds the decoding, scaling and preview helpers shared by
// the analysis pipeline and the HTTP layer.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"

	"github.com/apex/log"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	maxPreviewDimension = 512 // Maximum preview width or height in pixels
	previewQuality      = 85
)

// areaAverage is a box filter. draw.Kernel widens the support by the
// downscale factor, so each destination pixel averages the source pixels it
// covers.
var areaAverage = &draw.Kernel{
	Support: 0.5,
	At:      func(float64) float64 { return 1 },
}

// DecodeFile reads and decodes an image file, returning the raw bytes as
// well so callers can inspect EXIF without reading the file twice.
func DecodeFile(path string) (image.Image, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, data, nil
}

// FitWithin returns the dimensions of a w x h image scaled down so that its
// longest side is maxSide, truncating like integer pixel math does. Images
// already within bounds keep their size.
func FitWithin(w, h, maxSide int) (int, int) {
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxSide {
		return w, h
	}
	scale := float64(maxSide) / float64(longest)
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

// Downscale shrinks img with area averaging so its longest side is at most
// maxSide. Smaller images are returned unchanged.
func Downscale(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	nw, nh := FitWithin(b.Dx(), b.Dy(), maxSide)
	if nw == b.Dx() && nh == b.Dy() {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	areaAverage.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Resize scales img to exactly w x h with bilinear interpolation.
func Resize(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Grayscale converts img to 8-bit luma (0.299R + 0.587G + 0.114B).
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Preview builds an upright JPEG no larger than 512 pixels on either side
func Preview(data []byte) ([]byte, error) {
	orientation := Orientation(data)

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if orientation != 1 {
		img = Orient(img, orientation)
	}

	b := img.Bounds()
	nw, nh := FitWithin(b.Dx(), b.Dy(), maxPreviewDimension)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: previewQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	log.Debugf("Preview built: %d bytes -> %d bytes (original: %dx%d, new: %dx%d, orientation: %d)",
		len(data), buf.Len(), b.Dx(), b.Dy(), nw, nh, orientation)

	return buf.Bytes(), nil
}
