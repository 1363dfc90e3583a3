// Package compare diffs a screenshot against its reference capture.
package compare

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"time"

	"github.com/orisano/pixelmatch"
	"golang.org/x/image/draw"
)

// Options controls a comparison.
type Options struct {
	// Threshold is the mismatch percentage (0-100) above which a pair is
	// reported as changed.
	Threshold float64
	// PixelThreshold is the per-pixel color distance (0-1) pixelmatch
	// tolerates. Zero selects 0.1.
	PixelThreshold float64
	// IncludeAntiAlias counts anti-aliased pixels as differences.
	IncludeAntiAlias bool
	// Caption adds a strip with the mismatch figures under the diff image.
	Caption bool
}

// Dimensions is a width/height pair.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Difference is the result of comparing two captures.
type Difference struct {
	DiffFilename        string     `json:"diffFilename"`
	IsSameDimensions    bool       `json:"isSameDimensions"`
	DimensionDifference Dimensions `json:"dimensionDifference"`
	DiffPixels          int        `json:"diffPixels"`
	TotalPixels         int        `json:"totalPixels"`
	MisMatchPercentage  float64    `json:"misMatchPercentage"`
	Changed             bool       `json:"changed"`
	AnalysisTime        int64      `json:"analysisTime"` // milliseconds
}

// DiffFilename returns the diff image path for a reference capture.
func DiffFilename(refFilename string) string {
	return strings.TrimSuffix(refFilename, ".png") + "-diff.png"
}

// Images compares reference against primary. The reference is scaled to the
// primary's size first. The returned image highlights differing pixels.
func Images(primary, reference image.Image, opts Options) (*Difference, image.Image, error) {
	start := time.Now()

	pb, rb := primary.Bounds(), reference.Bounds()
	if pb.Empty() {
		return nil, nil, fmt.Errorf("primary image is empty")
	}

	diff := &Difference{
		IsSameDimensions: pb.Dx() == rb.Dx() && pb.Dy() == rb.Dy(),
		DimensionDifference: Dimensions{
			Width:  pb.Dx() - rb.Dx(),
			Height: pb.Dy() - rb.Dy(),
		},
		TotalPixels: pb.Dx() * pb.Dy(),
	}

	a := toRGBA(primary)
	b := scaleTo(reference, a.Bounds())

	pixelThreshold := opts.PixelThreshold
	if pixelThreshold <= 0 {
		pixelThreshold = 0.1
	}

	var out image.Image
	matchOpts := []pixelmatch.MatchOption{
		pixelmatch.Threshold(pixelThreshold),
		pixelmatch.WriteTo(&out),
	}
	if opts.IncludeAntiAlias {
		matchOpts = append(matchOpts, pixelmatch.IncludeAntiAlias)
	}

	n, err := pixelmatch.MatchPixel(a, b, matchOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("error matching pixels: %w", err)
	}

	// no diff image for identical inputs
	if out == nil {
		out = faded(a)
	}

	diff.DiffPixels = n
	diff.MisMatchPercentage = float64(n) * 100 / float64(diff.TotalPixels)
	diff.Changed = diff.MisMatchPercentage > opts.Threshold
	diff.AnalysisTime = time.Since(start).Milliseconds()

	return diff, out, nil
}

// Files compares the PNG files at primaryPath and referencePath and writes
// the diff image to diffPath.
func Files(primaryPath, referencePath, diffPath string, opts Options) (*Difference, error) {
	primary, err := readPNG(primaryPath)
	if err != nil {
		return nil, err
	}

	reference, err := readPNG(referencePath)
	if err != nil {
		return nil, err
	}

	diff, out, err := Images(primary, reference, opts)
	if err != nil {
		return nil, fmt.Errorf("comparing %s with %s: %w", primaryPath, referencePath, err)
	}

	if opts.Caption {
		captioned, err := Caption(out, fmt.Sprintf("%.2f%% mismatch (%d of %d pixels)",
			diff.MisMatchPercentage, diff.DiffPixels, diff.TotalPixels))
		if err != nil {
			return nil, err
		}
		out = captioned
	}

	if err := writePNG(diffPath, out); err != nil {
		return nil, err
	}

	diff.DiffFilename = diffPath
	return diff, nil
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

// toRGBA copies img into an RGBA image anchored at the origin.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func scaleTo(img image.Image, bounds image.Rectangle) *image.RGBA {
	if img.Bounds().Dx() == bounds.Dx() && img.Bounds().Dy() == bounds.Dy() {
		return toRGBA(img)
	}
	dst := image.NewRGBA(bounds)
	draw.ApproxBiLinear.Scale(dst, bounds, img, img.Bounds(), draw.Src, nil)
	return dst
}

// faded renders img at low opacity over white, the way pixelmatch draws
// unchanged pixels.
func faded(img *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(img.Bounds())
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.DrawMask(dst, dst.Bounds(), img, img.Bounds().Min, image.NewUniform(color.Alpha{A: 26}), image.Point{}, draw.Over)
	return dst
}
