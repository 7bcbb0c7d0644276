package avatar

import (
	"strings"
	"sync"
)

// SourceKind tells where the displayed avatar comes from.
type SourceKind string

const (
	SourceRemote   SourceKind = "remote"
	SourceInline   SourceKind = "inline"
	SourceInitials SourceKind = "initials"
)

// Source is what the card currently shows as its avatar.
type Source struct {
	Kind  SourceKind
	URL   string
	Image *Image
}

// Src returns the value an <img src> would carry.
func (s Source) Src() string {
	if s.Image != nil {
		return s.Image.DataURI()
	}
	return s.URL
}

// StateView is the serializable form of a State.
type StateView struct {
	Handle     string     `json:"handle"`
	Candidates []string   `json:"candidates"`
	Active     int        `json:"activeIndex"`
	Exhausted  bool       `json:"exhausted"`
	Overridden bool       `json:"overridden"`
	Kind       SourceKind `json:"kind"`
	Src        string     `json:"src"`
}

// State is the display-side avatar policy: show candidates[active], advance on
// load errors, and switch to initials for good once the list is used up.
// An override (set by the exporter) supersedes everything while present.
type State struct {
	resolver *Resolver

	// held for a whole export so overrides never interleave
	exportMu sync.Mutex

	mu          sync.Mutex
	handle      string
	name        string
	candidates  []string
	active      int
	exhausted   bool
	override    *Image
	initials    *Image
	initialsFor string
	bound       bool
}

// SetProfile updates the handle and the fallback name. A handle change restarts
// the chain from the first candidate.
func (s *State) SetProfile(handle, name string) {
	handle = strings.TrimSpace(handle)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	if s.bound && handle == s.handle {
		return
	}
	s.bound = true
	s.handle = handle
	s.candidates = s.resolver.Candidates(handle)
	s.active = 0
	s.exhausted = false
	s.initials = nil
}

func (s *State) Handle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Candidates returns a copy of the current candidate list.
func (s *State) Candidates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.candidates...)
}

// FallbackName is the text the initials are derived from.
func (s *State) FallbackName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallbackNameLocked()
}

func (s *State) fallbackNameLocked() string {
	if s.name != "" {
		return s.name
	}
	if s.handle != "" {
		return "@" + s.handle
	}
	return s.resolver.Placeholder()
}

// Display returns the avatar to show right now.
func (s *State) Display() Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayLocked()
}

func (s *State) displayLocked() Source {
	if s.override != nil {
		img := *s.override
		return Source{Kind: SourceInline, Image: &img}
	}
	if s.exhausted {
		name := s.fallbackNameLocked()
		if s.initials == nil || s.initialsFor != name {
			img := s.resolver.Initials(name)
			s.initials = &img
			s.initialsFor = name
		}
		img := *s.initials
		return Source{Kind: SourceInitials, Image: &img}
	}
	if s.active < len(s.candidates) {
		return Source{Kind: SourceRemote, URL: s.candidates[s.active]}
	}
	return Source{Kind: SourceRemote, URL: s.resolver.Fallback()}
}

// OnError records a load failure of the displayed remote candidate. It reports
// whether the display changed; once initials are active it is a no-op.
func (s *State) OnError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exhausted || s.override != nil {
		return false
	}
	if s.active < len(s.candidates)-1 {
		s.active++
		return true
	}
	s.exhausted = true
	return true
}

// PushOverride forces the display to img until the returned restore func runs.
// Restore puts back whatever override was present before.
func (s *State) PushOverride(img Image) (restore func()) {
	s.mu.Lock()
	prev := s.override
	s.override = &img
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.override = prev
			s.mu.Unlock()
		})
	}
}

// LockExport serializes export pipelines on this state. Each export pushes and
// restores its own override while holding it.
func (s *State) LockExport() (unlock func()) {
	s.exportMu.Lock()
	return s.exportMu.Unlock
}

// View snapshots the state for transport.
func (s *State) View() StateView {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.displayLocked()
	return StateView{
		Handle:     s.handle,
		Candidates: append([]string(nil), s.candidates...),
		Active:     s.active,
		Exhausted:  s.exhausted,
		Overridden: s.override != nil,
		Kind:       src.Kind,
		Src:        src.Src(),
	}
}
