// Package avatar resolves profile pictures for the share card: an ordered list of
// remote provider candidates, a linear fallback chain for display, and a locally
// generated initials image that never depends on the network.
package avatar

import (
	"encoding/base64"
	"image"
	"image/color"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"iq-card-service/internal/raster"
)

// GhostURL is the handle-independent last network candidate.
const GhostURL = "https://unavatar.io/github/ghost"

// DefaultProviders are tried in order; {handle} is replaced by the escaped handle.
var DefaultProviders = []string{
	"https://unavatar.io/x/{handle}",
	"https://unavatar.io/twitter/{handle}",
	"https://unavatar.io/{handle}",
}

const initialsSize = 96

// Config describes the candidate templates and the initials fallback of one brand.
type Config struct {
	Providers   []string
	Fallback    string
	Placeholder string
	// Initials holds the two letters used when a name token is missing.
	Initials   string
	Background string
	Foreground string
}

// Image is a self-contained, embeddable image resource.
type Image struct {
	MIME     string `json:"mime"`
	Data     []byte `json:"-"`
	Initials string `json:"initials,omitempty"`
}

// DataURI returns the base64 data URI form of the image.
func (i Image) DataURI() string {
	return "data:" + i.MIME + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Generated reports whether the image is a local initials rendering.
func (i Image) Generated() bool {
	return i.Initials != ""
}

// Resolver builds candidate lists and initials images for one brand.
type Resolver struct {
	providers   []string
	fallback    string
	placeholder string
	first       rune
	second      rune
	background  color.RGBA
	foreground  color.RGBA
}

func NewResolver(cfg Config) *Resolver {
	providers := cfg.Providers
	if len(providers) == 0 {
		providers = DefaultProviders
	}
	fallback := cfg.Fallback
	if fallback == "" {
		fallback = GhostURL
	}
	placeholder := cfg.Placeholder
	if placeholder == "" {
		placeholder = "Quiz Learner"
	}
	letters := []rune(strings.ToUpper(cfg.Initials))
	first, second := 'Q', 'I'
	if len(letters) > 0 {
		first = letters[0]
	}
	if len(letters) > 1 {
		second = letters[1]
	}
	return &Resolver{
		providers:   providers,
		fallback:    fallback,
		placeholder: placeholder,
		first:       first,
		second:      second,
		background:  raster.ParseHex(cfg.Background, color.RGBA{0x11, 0x18, 0x27, 0xff}),
		foreground:  raster.ParseHex(cfg.Foreground, color.RGBA{0xa5, 0xb4, 0xfc, 0xff}),
	}
}

// Fallback returns the static last-resort URL.
func (r *Resolver) Fallback() string {
	return r.fallback
}

// Placeholder is the identity used when the profile is empty.
func (r *Resolver) Placeholder() string {
	return r.placeholder
}

// Candidates returns the provider URLs for handle followed by the static fallback.
// An empty handle yields no candidates.
func (r *Resolver) Candidates(handle string) []string {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil
	}
	escaped := url.PathEscape(handle)
	out := make([]string, 0, len(r.providers)+1)
	for _, tmpl := range r.providers {
		out = append(out, strings.ReplaceAll(tmpl, "{handle}", escaped))
	}
	return append(out, r.fallback)
}

// InitialsText extracts the two uppercase letters used by Initials.
func (r *Resolver) InitialsText(nameLike string) string {
	txt := strings.TrimPrefix(strings.TrimSpace(nameLike), "@")
	parts := strings.Fields(txt)
	first, second := r.first, r.second
	if len(parts) > 0 {
		first, _ = utf8.DecodeRuneInString(parts[0])
	}
	if len(parts) > 1 {
		second, _ = utf8.DecodeRuneInString(parts[1])
	}
	return string([]rune{unicode.ToUpper(first), unicode.ToUpper(second)})
}

// Initials renders a square PNG with the initials of nameLike. It performs no I/O.
func (r *Resolver) Initials(nameLike string) Image {
	letters := r.InitialsText(nameLike)

	img := image.NewRGBA(image.Rect(0, 0, initialsSize, initialsSize))
	raster.FillRoundedRect(img, img.Bounds(), 16, r.background)
	scale := 3
	top := (initialsSize - raster.GlyphHeight*scale) / 2
	raster.DrawText(img, letters, initialsSize/2, top, scale, raster.AlignCenter, r.foreground)

	data, _ := raster.EncodePNG(img)
	return Image{MIME: "image/png", Data: data, Initials: letters}
}

// NewState starts a display state for this resolver.
func (r *Resolver) NewState() *State {
	return &State{resolver: r}
}
