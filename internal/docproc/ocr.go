package docproc

import (
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// ocrStrategy handles scanned receipts: grayscale, Otsu binarization, then
// Tesseract.
type ocrStrategy struct{}

func (ocrStrategy) name() string { return "ocr" }

func (ocrStrategy) extract(path string) (Extraction, error) {
	src, err := imaging.Open(path)
	if err != nil {
		return Extraction{}, err
	}

	binarized := binarize(imaging.Grayscale(src))

	tmpDir, err := os.MkdirTemp("", "ocr")
	if err != nil {
		return Extraction{}, err
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, "preprocessed.png")
	if err := imaging.Save(binarized, tmpPath); err != nil {
		return Extraction{}, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImage(tmpPath); err != nil {
		return Extraction{}, err
	}

	text, err := client.Text()
	if err != nil {
		return Extraction{}, err
	}

	return parseFields(strings.TrimSpace(text)), nil
}

// binarize applies Otsu's threshold to a grayscale image.
func binarize(src image.Image) *image.Gray {
	bounds := src.Bounds()
	gray := image.NewGray(bounds)

	var histogram [256]int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, src.At(x, y))
			histogram[gray.GrayAt(x, y).Y]++
		}
	}

	threshold := otsuThreshold(histogram, bounds.Dx()*bounds.Dy())

	for i := range gray.Pix {
		if gray.Pix[i] > threshold {
			gray.Pix[i] = 255
		} else {
			gray.Pix[i] = 0
		}
	}
	return gray
}

func otsuThreshold(histogram [256]int, total int) uint8 {
	var sum float64
	for i, count := range histogram {
		sum += float64(i) * float64(count)
	}

	var sumB, weightB float64
	var maxVariance float64
	var threshold uint8

	for t := 0; t < 256; t++ {
		weightB += float64(histogram[t])
		if weightB == 0 {
			continue
		}
		weightF := float64(total) - weightB
		if weightF == 0 {
			break
		}

		sumB += float64(t) * float64(histogram[t])
		meanB := sumB / weightB
		meanF := (sum - sumB) / weightF

		variance := weightB * weightF * (meanB - meanF) * (meanB - meanF)
		if variance > maxVariance {
			maxVariance = variance
			threshold = uint8(t)
		}
	}
	return threshold
}
