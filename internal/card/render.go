package card

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"iq-card-service/internal/avatar"
	"iq-card-service/internal/raster"
)

const (
	cardWidth  = 480
	cardHeight = 270
	margin     = 16
)

var (
	defaultBackground = color.RGBA{0x1e, 0x1b, 0x4b, 0xff}
	defaultAccent     = color.RGBA{0x63, 0x66, 0xf1, 0xff}
	defaultPanel      = color.RGBA{0x31, 0x2e, 0x81, 0xff}
	defaultText       = color.RGBA{0xff, 0xff, 0xff, 0xff}
	defaultMuted      = color.RGBA{0xc7, 0xd2, 0xfe, 0xff}
)

// PNGRenderer draws the share card with the brand theme.
type PNGRenderer struct{}

func NewPNGRenderer() *PNGRenderer {
	return &PNGRenderer{}
}

type palette struct {
	background, accent, panel, text, muted color.RGBA
}

// Render draws c at 480x270 and upscales it by scale.
func (r *PNGRenderer) Render(ctx context.Context, c Card, scale int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	avatarImg, err := decodeAvatar(c.Avatar)
	if err != nil {
		return nil, err
	}

	theme := c.Brand.Theme
	p := palette{
		background: raster.ParseHex(theme.Background, defaultBackground),
		accent:     raster.ParseHex(theme.Accent, defaultAccent),
		panel:      raster.ParseHex(theme.Panel, defaultPanel),
		text:       raster.ParseHex(theme.Text, defaultText),
		muted:      raster.ParseHex(theme.Muted, defaultMuted),
	}

	base := image.NewRGBA(image.Rect(0, 0, cardWidth, cardHeight))
	raster.FillRoundedRect(base, base.Bounds(), 16, p.background)
	raster.FillRoundedRect(base, image.Rect(cardWidth-120, -60, cardWidth+40, 100), 80, p.accent)

	drawHeader(base, c, avatarImg, p)
	drawStats(base, c, p)
	drawFooter(base, c.Brand.Tagline, p)

	out := raster.Upscale(base, scale)
	data, err := raster.EncodePNG(out)
	if err != nil {
		return nil, fmt.Errorf("encode card: %w", err)
	}
	return data, nil
}

func decodeAvatar(src avatar.Source) (image.Image, error) {
	if src.Image == nil || len(src.Image.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsafeAvatar, src.URL)
	}
	img, _, err := image.Decode(bytes.NewReader(src.Image.Data))
	if err != nil {
		return nil, fmt.Errorf("decode avatar: %w", err)
	}
	return img, nil
}

func drawHeader(dst *image.RGBA, c Card, avatarImg image.Image, p palette) {
	avatarRect := image.Rect(margin, margin, margin+48, margin+48)
	raster.FillRoundedRect(dst, avatarRect.Inset(-2), 12, p.muted)
	raster.DrawFitted(dst, avatarRect, avatarImg)

	tag := c.Brand.Tag
	tagWidth := 0
	if tag != "" {
		tagWidth = raster.TextWidth(tag, 1) + 12
		box := image.Rect(cardWidth-margin-tagWidth, margin+8, cardWidth-margin, margin+8+raster.GlyphHeight+8)
		raster.FillRoundedRect(dst, box, 6, p.panel)
		raster.DrawText(dst, tag, box.Min.X+6, box.Min.Y+4, 1, raster.AlignLeft, p.text)
	}

	textX := avatarRect.Max.X + 12
	maxWidth := cardWidth - margin - tagWidth - 8 - textX
	raster.DrawText(dst, raster.Fit(c.Label, 2, maxWidth), textX, margin+2, 2, raster.AlignLeft, p.text)

	subtitle := c.Subtitle
	if subtitle == "" {
		subtitle = strings.TrimSpace(c.Brand.Name + " IQ Share Card")
	}
	raster.DrawText(dst, raster.Fit(subtitle, 1, maxWidth), textX, margin+34, 1, raster.AlignLeft, p.muted)
}

func drawStats(dst *image.RGBA, c Card, p palette) {
	const gap = 12
	top, height := 96, 84
	width := (cardWidth - 2*margin - 2*gap) / 3
	stats := []struct{ label, value string }{
		{"Score", strconv.Itoa(c.Result.Score) + "/" + strconv.Itoa(c.Result.MaxScore)},
		{"Est. IQ", strconv.Itoa(c.Result.IQ)},
		{"Badge", c.Result.Badge},
	}
	for i, s := range stats {
		x := margin + i*(width+gap)
		box := image.Rect(x, top, x+width, top+height)
		raster.FillRoundedRect(dst, box, 10, p.panel)
		center := x + width/2
		raster.DrawText(dst, s.label, center, top+10, 1, raster.AlignCenter, p.muted)

		scale := 4
		for scale > 1 && raster.TextWidth(s.value, scale) > width-12 {
			scale--
		}
		value := raster.Fit(s.value, scale, width-12)
		valueTop := top + 30 + (height-30-raster.GlyphHeight*scale)/2
		raster.DrawText(dst, value, center, valueTop, scale, raster.AlignCenter, p.text)
	}
}

func drawFooter(dst *image.RGBA, tagline string, p palette) {
	if tagline == "" {
		return
	}
	y := 200
	for _, line := range wrap(tagline, cardWidth-2*margin) {
		if y+raster.GlyphHeight > cardHeight-margin {
			break
		}
		raster.DrawText(dst, line, margin, y, 1, raster.AlignLeft, p.muted)
		y += raster.GlyphHeight + 3
	}
}

func wrap(text string, width int) []string {
	var lines []string
	line := ""
	for _, word := range strings.Fields(text) {
		next := word
		if line != "" {
			next = line + " " + word
		}
		if raster.TextWidth(next, 1) > width && line != "" {
			lines = append(lines, line)
			next = word
		}
		line = next
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}
