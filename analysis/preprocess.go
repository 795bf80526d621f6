package analysis

import (
	"bytes"
	"fmt"
	"image"
	"os"

	"pixeltruth/classifier"
	"pixeltruth/imaging"
)

// Model input geometry.
const (
	resizeSide = 256
	cropSide   = 224
	channels   = 3
)

var (
	channelMean = [channels]float32{0.485, 0.456, 0.406}
	channelStd  = [channels]float32{0.229, 0.224, 0.225}
)

// PreprocessFile decodes the image at path and converts it to the model's
// input tensor. EXIF orientation is ignored: the model sees stored pixels.
func PreprocessFile(path string) (classifier.Tensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return classifier.Tensor{}, fmt.Errorf("failed to read image: %w", err)
	}
	return PreprocessBytes(data)
}

// PreprocessBytes is PreprocessFile for encoded image data.
func PreprocessBytes(data []byte) (classifier.Tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return classifier.Tensor{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return ToTensor(img), nil
}

// ToTensor resizes img to 256x256, crops the centre 224x224, scales to [0,1]
// and normalises each channel. The result is CHW float32.
func ToTensor(img image.Image) classifier.Tensor {
	resized := imaging.Resize(img, resizeSide, resizeSide)
	off := (resizeSide - cropSide) / 2

	plane := cropSide * cropSide
	data := make([]float32, channels*plane)
	for y := 0; y < cropSide; y++ {
		row := resized.Pix[(y+off)*resized.Stride:]
		for x := 0; x < cropSide; x++ {
			px := row[(x+off)*4:]
			i := y*cropSide + x
			for c := 0; c < channels; c++ {
				v := float32(px[c]) / 255
				data[c*plane+i] = (v - channelMean[c]) / channelStd[c]
			}
		}
	}
	return classifier.Tensor{Shape: []int{channels, cropSide, cropSide}, Data: data}
}
