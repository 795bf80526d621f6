package analysis

import (
	"fmt"
	"image"
	"math"

	"pixeltruth/imaging"
)

const (
	// qualityMaxSide bounds the image before metrics are computed.
	qualityMaxSide = 512

	// edgeThreshold is the Sobel L1 magnitude above which a pixel is an edge.
	edgeThreshold = 150
)

// AnalyzeQuality computes pixel statistics of the image at path. It returns
// nil metrics with the error when the file cannot be read or decoded.
func AnalyzeQuality(path string) (*QualityMetrics, error) {
	img, _, err := imaging.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return QualityOf(img)
}

// QualityOf computes metrics for an already decoded image.
func QualityOf(img image.Image) (*QualityMetrics, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty image")
	}
	gray := imaging.Grayscale(imaging.Downscale(img, qualityMaxSide))

	mean, std := meanStd(gray)
	q := &QualityMetrics{
		Sharpness:   laplacianVariance(gray),
		NoiseLevel:  std,
		Brightness:  mean / 255,
		EdgeDensity: edgeDensity(gray),
	}
	if mean > 0 {
		q.Contrast = std / mean
	}
	return q, nil
}

// meanStd returns the mean and population standard deviation of the pixels.
func meanStd(g *image.Gray) (float64, float64) {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	n := float64(w * h)

	var sum float64
	for y := 0; y < h; y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			sum += float64(v)
		}
	}
	mean := sum / n

	var sq float64
	for y := 0; y < h; y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			d := float64(v) - mean
			sq += d * d
		}
	}
	return mean, math.Sqrt(sq / n)
}

// reflect101 mirrors an out of range index without repeating the edge pixel.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

func at(g *image.Gray, x, y int) float64 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	return float64(g.Pix[reflect101(y, h)*g.Stride+reflect101(x, w)])
}

// laplacianVariance is the variance of the 4-neighbour Laplacian.
func laplacianVariance(g *image.Gray) float64 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	n := float64(w * h)
	lap := make([]float64, 0, w*h)

	var sum float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := at(g, x-1, y) + at(g, x+1, y) + at(g, x, y-1) + at(g, x, y+1) - 4*at(g, x, y)
			lap = append(lap, v)
			sum += v
		}
	}
	mean := sum / n

	var sq float64
	for _, v := range lap {
		d := v - mean
		sq += d * d
	}
	return sq / n
}

// edgeDensity is the fraction of pixels whose Sobel gradient magnitude
// (|gx| + |gy|) exceeds edgeThreshold.
func edgeDensity(g *image.Gray) float64 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	edges := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := at(g, x+1, y-1) + 2*at(g, x+1, y) + at(g, x+1, y+1) -
				at(g, x-1, y-1) - 2*at(g, x-1, y) - at(g, x-1, y+1)
			gy := at(g, x-1, y+1) + 2*at(g, x, y+1) + at(g, x+1, y+1) -
				at(g, x-1, y-1) - 2*at(g, x, y-1) - at(g, x+1, y-1)
			if math.Abs(gx)+math.Abs(gy) > edgeThreshold {
				edges++
			}
		}
	}
	return float64(edges) / float64(w*h)
}
