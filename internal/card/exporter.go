// Package card exports the share card: it inlines the avatar so the snapshot has
// no remote references, renders the card to PNG and names the download.
package card

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"iq-card-service/internal/avatar"
	"iq-card-service/internal/domain"
)

// ErrUnsafeAvatar is returned by renderers asked to draw an avatar that is only a
// remote URL. Snapshots must never reference cross-origin content.
var ErrUnsafeAvatar = errors.New("avatar is not inlined")

// Card is the renderable region: everything shown on the share card.
type Card struct {
	Brand    domain.Brand
	Label    string
	Result   domain.Result
	Avatar   avatar.Source
	Subtitle string
}

// Renderer rasterizes a card at an integer upscale factor.
type Renderer interface {
	Render(ctx context.Context, card Card, scale int) ([]byte, error)
}

// Download is the file handed to the user.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Save writes the download into dir and returns the full path.
func (d Download) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, d.Filename)
	if err := os.WriteFile(path, d.Data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Options tune the exporter.
type Options struct {
	Scale int
	// Settle is the pause after forcing an inlined avatar; SettleFallback after
	// forcing initials.
	Settle         time.Duration
	SettleFallback time.Duration
}

// DefaultOptions match the widget: 2x pixel ratio, 60ms/40ms settle.
func DefaultOptions() Options {
	return Options{Scale: 2, Settle: 60 * time.Millisecond, SettleFallback: 40 * time.Millisecond}
}

// Exporter runs the export pipeline.
type Exporter struct {
	renderer Renderer
	inliner  avatar.Inliner
	opts     Options
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewExporter(renderer Renderer, inliner avatar.Inliner, opts Options) *Exporter {
	if opts.Scale <= 0 {
		opts.Scale = 2
	}
	return &Exporter{renderer: renderer, inliner: inliner, opts: opts, sleep: sleepCtx}
}

// Export snapshots c with the avatar from state inlined. The avatar override is
// reverted on every path, so the live display is unchanged afterwards.
func (e *Exporter) Export(ctx context.Context, c Card, resolver *avatar.Resolver, profile domain.Profile, state *avatar.State) (Download, error) {
	unlock := state.LockExport()
	defer unlock()

	remote := ""
	if candidates := state.Candidates(); len(candidates) > 0 {
		remote = candidates[0]
	} else if src := state.Display(); src.Kind == avatar.SourceRemote {
		remote = src.URL
	}

	settle := e.opts.Settle
	var img avatar.Image
	var err error
	if remote != "" {
		img, err = e.inliner.Inline(ctx, remote)
	} else {
		err = fmt.Errorf("%w: no remote avatar", domain.ErrNetworkUnavailable)
	}
	if err != nil {
		log.Printf("avatar inline failed, using initials: %v", err)
		img = resolver.Initials(state.FallbackName())
		settle = e.opts.SettleFallback
	}

	restore := state.PushOverride(img)
	defer restore()

	if err := e.sleep(ctx, settle); err != nil {
		return Download{}, fmt.Errorf("%w: %v", domain.ErrExportFailed, err)
	}

	c.Avatar = state.Display()
	data, err := e.renderer.Render(ctx, c, e.opts.Scale)
	if err != nil {
		log.Printf("card export failed: %v", err)
		return Download{}, fmt.Errorf("%w: %v", domain.ErrExportFailed, err)
	}

	return Download{
		Filename:    Filename(c.Brand.Name, profile.Handle),
		ContentType: "image/png",
		Data:        data,
	}, nil
}

// Filename builds "<Brand>-IQ-<handle>.png", using "anon" for an empty handle.
func Filename(brand, handle string) string {
	if handle == "" {
		handle = "anon"
	}
	if brand == "" {
		brand = "Quiz"
	}
	return fmt.Sprintf("%s-IQ-%s.png", sanitize(brand), sanitize(handle))
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
