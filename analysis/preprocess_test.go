package analysis

import (
	"image/color"
	"math"
	"testing"

	"pixeltruth/testsupport"
)

func TestToTensorShapeAndNormalisation(t *testing.T) {
	tensor := ToTensor(testsupport.Uniform(300, 200, color.RGBA{R: 255, G: 0, B: 128, A: 255}))

	if err := tensor.Validate(); err != nil {
		t.Fatalf("invalid tensor: %v", err)
	}
	if len(tensor.Shape) != 3 || tensor.Shape[0] != 3 || tensor.Shape[1] != 224 || tensor.Shape[2] != 224 {
		t.Fatalf("shape = %v, want [3 224 224]", tensor.Shape)
	}

	plane := 224 * 224
	want := []float64{
		(1 - 0.485) / 0.229,
		(0 - 0.456) / 0.224,
		(128.0/255 - 0.406) / 0.225,
	}
	for c, w := range want {
		for _, i := range []int{0, plane / 2, plane - 1} {
			if got := float64(tensor.Data[c*plane+i]); math.Abs(got-w) > 0.02 {
				t.Errorf("channel %d index %d = %f, want %f", c, i, got, w)
			}
		}
	}
}

func TestToTensorIsDeterministic(t *testing.T) {
	img := testsupport.Pattern(320, 240)
	a, b := ToTensor(img), ToTensor(img)
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("tensors differ at %d", i)
		}
	}
}

func TestPreprocessBytesIgnoresOrientation(t *testing.T) {
	plain, err := PreprocessBytes(testsupport.JPEG(320, 160))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tags := []testsupport.ExifTag{{ID: testsupport.TagOrientation, Short: 6}}
	rotated, err := PreprocessBytes(testsupport.JPEGWithExif(320, 160, tags))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rotated.Validate(); err != nil {
		t.Fatalf("invalid tensor: %v", err)
	}

	for i := range plain.Data {
		if plain.Data[i] != rotated.Data[i] {
			t.Fatalf("tensors differ at %d: orientation was applied to model input", i)
		}
	}
}

func TestPreprocessFileRejectsCorruptData(t *testing.T) {
	path := testsupport.WriteFile(t, "broken.jpg", []byte{0xFF, 0xD8, 0xFF, 0x00})
	if _, err := PreprocessFile(path); err == nil {
		t.Error("expected an error for corrupt data")
	}
}
