// Package raster holds the small drawing helpers shared by the initials avatar
// and the card renderer: hex colors, rounded panels and scaled bitmap text.
package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Align controls horizontal text placement relative to the anchor x.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

var face = basicfont.Face7x13

// GlyphHeight is the unscaled line height of the bitmap face.
const GlyphHeight = 13

// ParseHex parses #rgb or #rrggbb, returning fallback on malformed input.
func ParseHex(s string, fallback color.RGBA) color.RGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return fallback
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return fallback
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

// FillRoundedRect paints r with c, leaving the corners outside radius untouched.
func FillRoundedRect(dst draw.Image, r image.Rectangle, radius int, c color.Color) {
	if radius*2 > r.Dx() {
		radius = r.Dx() / 2
	}
	if radius*2 > r.Dy() {
		radius = r.Dy() / 2
	}
	src := image.NewUniform(c)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if outsideCorner(x-r.Min.X, y-r.Min.Y, r.Dx(), r.Dy(), radius) {
				continue
			}
			dst.Set(x, y, src.At(x, y))
		}
	}
}

func outsideCorner(x, y, w, h, radius int) bool {
	if radius <= 0 {
		return false
	}
	cx, cy := -1, -1
	switch {
	case x < radius && y < radius:
		cx, cy = radius, radius
	case x >= w-radius && y < radius:
		cx, cy = w-radius-1, radius
	case x < radius && y >= h-radius:
		cx, cy = radius, h-radius-1
	case x >= w-radius && y >= h-radius:
		cx, cy = w-radius-1, h-radius-1
	default:
		return false
	}
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy > radius*radius
}

// TextWidth reports the width of text at the given integer scale.
func TextWidth(text string, scale int) int {
	return font.MeasureString(face, text).Ceil() * max(scale, 1)
}

// DrawText renders text with its top edge at y, scaled by an integer factor.
func DrawText(dst draw.Image, text string, x, y, scale int, align Align, c color.Color) {
	if text == "" {
		return
	}
	scale = max(scale, 1)
	w := font.MeasureString(face, text).Ceil()
	glyphs := image.NewRGBA(image.Rect(0, 0, w, GlyphHeight))
	d := &font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(text)

	switch align {
	case AlignCenter:
		x -= w * scale / 2
	case AlignRight:
		x -= w * scale
	}
	dr := image.Rect(x, y, x+w*scale, y+GlyphHeight*scale)
	xdraw.NearestNeighbor.Scale(dst, dr, glyphs, glyphs.Bounds(), xdraw.Over, nil)
}

// Fit shortens text with a trailing "..." until it fits maxWidth at scale.
func Fit(text string, scale, maxWidth int) string {
	if TextWidth(text, scale) <= maxWidth {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if TextWidth(candidate, scale) <= maxWidth {
			return candidate
		}
	}
	return ""
}

// Upscale resamples src by an integer factor.
func Upscale(src image.Image, factor int) *image.RGBA {
	b := src.Bounds()
	factor = max(factor, 1)
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

// DrawFitted scales src into r, ignoring aspect ratio.
func DrawFitted(dst draw.Image, r image.Rectangle, src image.Image) {
	xdraw.ApproxBiLinear.Scale(dst, r, src, src.Bounds(), xdraw.Over, nil)
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
