// Package pixel implements the raster comparison strategy: decode two
// PNG captures, resample when dimensions disagree, count per-pixel
// mismatches against a fuzz threshold, and render a highlighted diff.
package pixel

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// alert is the fixed highlight color for mismatched pixels in diff images.
var alert = color.RGBA{R: 0xFF, G: 0x2D, B: 0x55, A: 0xFF}

// Options tune a comparison.
type Options struct {
	// Threshold is the per-channel fuzz as a fraction of full scale.
	// 0.1 means channel deltas up to 25/255 are equal; 0 is an exact
	// comparison. Negative values are clamped to 0.
	Threshold float64
	// IncludeAA counts anti-aliasing artifacts as mismatches. When off,
	// a differing pixel whose value appears within one pixel of its
	// position in the baseline is excused as edge shimmer.
	IncludeAA bool
}

// Report is the outcome of one comparison.
type Report struct {
	MismatchedPixels int
	TotalPixels      int
	Percentage       float64
	Match            bool
}

// Compare diffs two PNG captures. The actual image is resampled to the
// baseline's dimensions first if they differ; dimension mismatch is
// resolved, never an error. The returned image is the highlighted diff
// (baseline dimmed to gray, mismatches in the alert color); it is non-nil
// even on a full match so callers can decide what to persist.
func Compare(baselinePNG, actualPNG []byte, opts Options) (*Report, image.Image, error) {
	if opts.Threshold < 0 {
		opts.Threshold = 0
	}

	base, err := Decode(baselinePNG)
	if err != nil {
		return nil, nil, fmt.Errorf("pixel: decode baseline: %w", err)
	}
	act, err := Decode(actualPNG)
	if err != nil {
		return nil, nil, fmt.Errorf("pixel: decode actual: %w", err)
	}

	b := toRGBA(base)
	a := toRGBA(act)
	if !a.Bounds().Eq(b.Bounds()) {
		a = Resample(a, b.Bounds().Dx(), b.Bounds().Dy())
	}

	fuzz := int(opts.Threshold*255 + 0.5)
	w, h := b.Bounds().Dx(), b.Bounds().Dy()
	diff := image.NewRGBA(image.Rect(0, 0, w, h))

	mismatched := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bp := b.RGBAAt(x, y)
			ap := a.RGBAAt(x, y)

			if within(bp, ap, fuzz) {
				diff.SetRGBA(x, y, dim(bp))
				continue
			}
			if !opts.IncludeAA && antiAliased(b, ap, x, y, fuzz) {
				diff.SetRGBA(x, y, dim(bp))
				continue
			}

			mismatched++
			diff.SetRGBA(x, y, alert)
		}
	}

	total := w * h
	rep := &Report{
		MismatchedPixels: mismatched,
		TotalPixels:      total,
		Match:            mismatched == 0,
	}
	if total > 0 {
		rep.Percentage = float64(mismatched) / float64(total) * 100
	}
	return rep, diff, nil
}

// Resample scales src to w×h.
func Resample(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// Decode parses PNG bytes.
func Decode(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Encode renders an image to PNG bytes.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	dst := image.NewRGBA(img.Bounds().Sub(img.Bounds().Min))
	xdraw.Copy(dst, image.Point{}, img, img.Bounds(), xdraw.Src, nil)
	return dst
}

func within(a, b color.RGBA, fuzz int) bool {
	return absDelta(a.R, b.R) <= fuzz &&
		absDelta(a.G, b.G) <= fuzz &&
		absDelta(a.B, b.B) <= fuzz &&
		absDelta(a.A, b.A) <= fuzz
}

func absDelta(a, b uint8) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}

// antiAliased reports whether the actual pixel value occurs within one
// pixel of (x, y) in the baseline, which reads as an edge shifted by
// sub-pixel rendering rather than a content change.
func antiAliased(b *image.RGBA, ap color.RGBA, x, y, fuzz int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if !image.Pt(nx, ny).In(b.Bounds()) {
				continue
			}
			if within(b.RGBAAt(nx, ny), ap, fuzz) {
				return true
			}
		}
	}
	return false
}

// dim renders a baseline pixel as washed-out grayscale so alert pixels
// stand out in the diff image.
func dim(c color.RGBA) color.RGBA {
	gray := uint8((int(c.R)*299 + int(c.G)*587 + int(c.B)*114) / 1000)
	faded := uint8(192 + int(gray)/4)
	return color.RGBA{R: faded, G: faded, B: faded, A: 0xFF}
}
