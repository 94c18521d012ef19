package media

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

const blurHashAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz#$%*+,-.:;=?@[]^_{|}~"

// blurHashWorkingSize caps the image edge before encoding.
const blurHashWorkingSize = 64

// BlurHashComponents picks a component grid matching the aspect ratio.
func BlurHashComponents(width, height int) (x, y int) {
	if width <= 0 || height <= 0 {
		return 4, 3
	}
	aspect := float64(width) / float64(height)
	switch {
	case aspect > 1.5:
		return 5, 3
	case aspect < 0.67:
		return 3, 5
	default:
		return 4, 3
	}
}

// BlurHash downsamples img and encodes it with an aspect-matched grid.
func BlurHash(img image.Image) (string, error) {
	if img == nil {
		return "", errors.New("blurhash: nil image")
	}
	b := img.Bounds()
	x, y := BlurHashComponents(b.Dx(), b.Dy())
	small := img
	if b.Dx() > blurHashWorkingSize || b.Dy() > blurHashWorkingSize {
		small = imaging.Fit(img, blurHashWorkingSize, blurHashWorkingSize, imaging.Box)
	}
	return EncodeBlurHash(small, x, y)
}

// EncodeBlurHash encodes img with xComponents by yComponents cosine terms.
// Each count must be within 1..9.
func EncodeBlurHash(img image.Image, xComponents, yComponents int) (string, error) {
	if xComponents < 1 || xComponents > 9 || yComponents < 1 || yComponents > 9 {
		return "", fmt.Errorf("blurhash: components %dx%d out of range 1..9", xComponents, yComponents)
	}
	if xComponents*yComponents > 81 {
		return "", fmt.Errorf("blurhash: too many components %d", xComponents*yComponents)
	}
	if img == nil {
		return "", errors.New("blurhash: nil image")
	}

	px := imaging.Clone(img)
	width, height := px.Rect.Dx(), px.Rect.Dy()
	if width == 0 || height == 0 {
		return "", errors.New("blurhash: empty image")
	}

	linear := make([][3]float64, width*height)
	for yy := 0; yy < height; yy++ {
		for xx := 0; xx < width; xx++ {
			off := yy*px.Stride + xx*4
			linear[yy*width+xx] = [3]float64{
				sRGBToLinear(px.Pix[off]),
				sRGBToLinear(px.Pix[off+1]),
				sRGBToLinear(px.Pix[off+2]),
			}
		}
	}

	cosX := cosineTable(xComponents, width)
	cosY := cosineTable(yComponents, height)
	scale := 1 / float64(width*height)

	factors := make([][3]float64, 0, xComponents*yComponents)
	for j := 0; j < yComponents; j++ {
		for i := 0; i < xComponents; i++ {
			norm := 2.0
			if i == 0 && j == 0 {
				norm = 1
			}
			var r, g, b float64
			for yy := 0; yy < height; yy++ {
				cy := cosY[j*height+yy]
				row := linear[yy*width : (yy+1)*width]
				for xx, c := range row {
					basis := cosX[i*width+xx] * cy
					r += basis * c[0]
					g += basis * c[1]
					b += basis * c[2]
				}
			}
			s := norm * scale
			factors = append(factors, [3]float64{r * s, g * s, b * s})
		}
	}

	dc, ac := factors[0], factors[1:]

	var sb strings.Builder
	sb.Grow(4 + 2*len(factors) + 2)
	encode83(&sb, (xComponents-1)+(yComponents-1)*9, 1)

	maxValue := 1.0
	if len(ac) > 0 {
		actualMax := 0.0
		for _, f := range ac {
			actualMax = math.Max(actualMax, math.Max(math.Abs(f[0]), math.Max(math.Abs(f[1]), math.Abs(f[2]))))
		}
		quantMax := clampInt(int(math.Floor(actualMax*166-0.5)), 0, 82)
		maxValue = float64(quantMax+1) / 166
		encode83(&sb, quantMax, 1)
	} else {
		encode83(&sb, 0, 1)
	}

	encode83(&sb, encodeDC(dc), 4)
	for _, f := range ac {
		encode83(&sb, encodeAC(f, maxValue), 2)
	}

	return sb.String(), nil
}

func cosineTable(components, size int) []float64 {
	table := make([]float64, components*size)
	for c := 0; c < components; c++ {
		for p := 0; p < size; p++ {
			table[c*size+p] = math.Cos(math.Pi * float64(c) * float64(p) / float64(size))
		}
	}
	return table
}

func encodeDC(v [3]float64) int {
	return linearToSRGB(v[0])<<16 + linearToSRGB(v[1])<<8 + linearToSRGB(v[2])
}

func encodeAC(v [3]float64, maxValue float64) int {
	quant := func(x float64) int {
		return clampInt(int(math.Floor(signPow(x/maxValue, 0.5)*9+9.5)), 0, 18)
	}
	return quant(v[0])*19*19 + quant(v[1])*19 + quant(v[2])
}

func encode83(sb *strings.Builder, value, length int) {
	divisor := 1
	for i := 1; i < length; i++ {
		divisor *= 83
	}
	for i := 0; i < length; i++ {
		digit := (value / divisor) % 83
		sb.WriteByte(blurHashAlphabet[digit])
		divisor /= 83
	}
}

func sRGBToLinear(v uint8) float64 {
	x := float64(v) / 255
	if x <= 0.04045 {
		return x / 12.92
	}
	return math.Pow((x+0.055)/1.055, 2.4)
}

func linearToSRGB(v float64) int {
	x := math.Max(0, math.Min(1, v))
	if x <= 0.0031308 {
		return int(x*12.92*255 + 0.5)
	}
	return int((1.055*math.Pow(x, 1/2.4)-0.055)*255 + 0.5)
}

func signPow(v, exp float64) float64 {
	return math.Copysign(math.Pow(math.Abs(v), exp), v)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
