// image.go
// Image plumbing: decode, bilinear resample to the pipeline square,
// normalize to channels-first [-1,1], and the reverse path that turns
// generated tensors back into PNG sample sheets.

package main

import (
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return img, nil
}

// PreprocessImage resamples img to size x size with bilinear taps and
// returns channels-first float32 data in [-1,1], always 3 channels:
// grayscale sources replicate into all three planes through the RGBA
// conversion, alpha is discarded, nothing is truncated.
func PreprocessImage(img image.Image, size int) []float32 {
	b := img.Bounds()
	sw, sh := b.Dx(), b.Dy()
	out := make([]float32, 3*size*size)
	plane := size * size

	for y := 0; y < size; y++ {
		sy := (float64(y)+0.5)*float64(sh)/float64(size) - 0.5
		y0 := int(math.Floor(sy))
		fy := sy - float64(y0)
		y1 := y0 + 1
		if y0 < 0 {
			y0 = 0
		}
		if y1 > sh-1 {
			y1 = sh - 1
		}
		for x := 0; x < size; x++ {
			sx := (float64(x)+0.5)*float64(sw)/float64(size) - 0.5
			x0 := int(math.Floor(sx))
			fx := sx - float64(x0)
			x1 := x0 + 1
			if x0 < 0 {
				x0 = 0
			}
			if x1 > sw-1 {
				x1 = sw - 1
			}

			r00, g00, b00 := rgbAt(img, b.Min.X+x0, b.Min.Y+y0)
			r10, g10, b10 := rgbAt(img, b.Min.X+x1, b.Min.Y+y0)
			r01, g01, b01 := rgbAt(img, b.Min.X+x0, b.Min.Y+y1)
			r11, g11, b11 := rgbAt(img, b.Min.X+x1, b.Min.Y+y1)

			w00 := (1 - fx) * (1 - fy)
			w10 := fx * (1 - fy)
			w01 := (1 - fx) * fy
			w11 := fx * fy

			r := r00*w00 + r10*w10 + r01*w01 + r11*w11
			g := g00*w00 + g10*w10 + g01*w01 + g11*w11
			bl := b00*w00 + b10*w10 + b01*w01 + b11*w11

			i := y*size + x
			out[i] = float32(r/127.5 - 1)
			out[plane+i] = float32(g/127.5 - 1)
			out[2*plane+i] = float32(bl/127.5 - 1)
		}
	}
	return out
}

func rgbAt(img image.Image, x, y int) (float64, float64, float64) {
	r, g, b, _ := img.At(x, y).RGBA()
	return float64(r >> 8), float64(g >> 8), float64(b >> 8)
}

// LoadImageTensor decodes and preprocesses one file.
func LoadImageTensor(path string, size int) ([]float32, error) {
	img, err := decodeImage(path)
	if err != nil {
		return nil, err
	}
	return PreprocessImage(img, size), nil
}

func clamp8(v float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// TensorToRGBA renders image b of a (B,3,H,W) tensor in [-1,1].
func TensorToRGBA(t *Tensor, b int) *image.RGBA {
	h, w := t.Shape[2], t.Shape[3]
	plane := h * w
	base := b * 3 * plane
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			img.SetRGBA(x, y, color.RGBA{
				R: clamp8((t.Data[base+i] + 1) * 127.5),
				G: clamp8((t.Data[base+plane+i] + 1) * 127.5),
				B: clamp8((t.Data[base+2*plane+i] + 1) * 127.5),
				A: 255,
			})
		}
	}
	return img
}

// SaveSampleSheet tiles a generated batch into a labelled PNG grid,
// cols cells per row.
func SaveSampleSheet(path string, imgs *Tensor, cols int, label string) error {
	n := imgs.Shape[0]
	if cols < 1 {
		cols = 1
	}
	rows := (n + cols - 1) / cols
	side := imgs.Shape[2]
	const gap = 2
	width := cols*(side+gap) + gap
	height := rows*(side+gap) + gap + 16

	sheet := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(sheet, sheet.Bounds(), image.NewUniform(color.RGBA{20, 20, 20, 255}), image.Point{}, draw.Src)

	for i := 0; i < n; i++ {
		cell := TensorToRGBA(imgs, i)
		x := gap + (i%cols)*(side+gap)
		y := gap + (i/cols)*(side+gap)
		draw.Draw(sheet, image.Rect(x, y, x+side, y+side), cell, image.Point{}, draw.Src)
	}

	if label != "" {
		d := &font.Drawer{
			Dst:  sheet,
			Src:  image.NewUniform(color.RGBA{230, 230, 230, 255}),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(gap, height-4),
		}
		d.DrawString(label)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	if err := png.Encode(f, sheet); err != nil {
		return errors.Wrapf(err, "encode %s", path)
	}
	return nil
}
