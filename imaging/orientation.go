package imaging

import (
	"bytes"
	"image"

	"github.com/rwcarlsen/goexif/exif"
)

// Orientation extracts the EXIF orientation from encoded image data
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1 // no EXIF data or unreadable
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}

	orientation, err := tag.Int(0)
	if err != nil || orientation < 1 || orientation > 8 {
		return 1
	}

	return orientation
}

// Orient returns img transformed so that it displays upright for the given
// EXIF orientation value. Orientation 1 and unknown values return img as is.
func Orient(img image.Image, orientation int) image.Image {
	if orientation <= 1 || orientation > 8 {
		return img
	}

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	// Orientations 5-8 swap the axes.
	dstW, dstH := width, height
	if orientation >= 5 {
		dstW, dstH = height, width
	}
	out := image.NewRGBA(image.Rect(0, 0, dstW, dstH))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var dx, dy int
			switch orientation {
			case 2: // flip horizontal
				dx, dy = width-1-x, y
			case 3: // rotate 180
				dx, dy = width-1-x, height-1-y
			case 4: // flip vertical
				dx, dy = x, height-1-y
			case 5: // transpose
				dx, dy = y, x
			case 6: // rotate 90 clockwise
				dx, dy = height-1-y, x
			case 7: // transverse
				dx, dy = height-1-y, width-1-x
			case 8: // rotate 90 counter-clockwise
				dx, dy = y, width-1-x
			}
			out.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}
