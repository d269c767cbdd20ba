// Package state persists the user's reading preferences.
package state

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/metcalfc/aeonsight/internal/idle"
	"github.com/metcalfc/aeonsight/internal/reader"
	"github.com/metcalfc/aeonsight/internal/sandbox"
	"gopkg.in/yaml.v3"
)

const (
	appName       = "aeonsight"
	prefsFileName = "preferences.yaml"
)

// Reading width classes.
const (
	WidthNarrow = "narrow"
	WidthNormal = "normal"
	WidthWide   = "wide"
)

// TTS holds read-aloud preferences.
type TTS struct {
	Rate   float64 `yaml:"rate"`
	Pitch  float64 `yaml:"pitch"`
	Voice  string  `yaml:"voice"`
	Follow bool    `yaml:"follow"`
}

// Preferences is the flat configuration record loaded at startup and
// written on every change.
type Preferences struct {
	FontScale   int    `yaml:"font_scale"`
	Width       string `yaml:"width"`
	IdleMinutes int    `yaml:"idle_minutes"`
	Sandbox     string `yaml:"sandbox"`
	TTS         TTS    `yaml:"tts"`
	Theme       string `yaml:"theme"`
	ResumeKey   string `yaml:"resume_key"`
}

// Defaults returns the preferences of a fresh install.
func Defaults() Preferences {
	return Preferences{
		FontScale:   100,
		Width:       WidthNormal,
		IdleMinutes: idle.DefaultMinutes,
		Sandbox:     sandbox.ScriptsBlocked.String(),
		TTS:         TTS{Rate: 1, Pitch: 1},
		Theme:       "dark",
		ResumeKey:   string(reader.ResumeBoth),
	}
}

// Normalize replaces out-of-range values with their nearest valid value
// or the default.
func (p Preferences) Normalize() Preferences {
	d := Defaults()
	if p.FontScale == 0 {
		p.FontScale = d.FontScale
	}
	p.FontScale = max(50, min(300, p.FontScale))
	switch p.Width {
	case WidthNarrow, WidthNormal, WidthWide:
	default:
		p.Width = d.Width
	}
	if p.IdleMinutes == 0 {
		p.IdleMinutes = d.IdleMinutes
	}
	p.IdleMinutes = idle.ClampMinutes(p.IdleMinutes)
	if m, err := sandbox.ParseMode(p.Sandbox); err == nil {
		p.Sandbox = m.String()
	} else {
		p.Sandbox = d.Sandbox
	}
	switch reader.ResumeKey(p.ResumeKey) {
	case reader.ResumeCFI, reader.ResumePercent, reader.ResumeBoth:
	default:
		p.ResumeKey = d.ResumeKey
	}
	if p.TTS.Rate <= 0 {
		p.TTS.Rate = d.TTS.Rate
	}
	p.TTS.Rate = clampFloat(p.TTS.Rate, 0.5, 3)
	if p.TTS.Pitch <= 0 {
		p.TTS.Pitch = d.TTS.Pitch
	}
	p.TTS.Pitch = clampFloat(p.TTS.Pitch, 0.5, 2)
	if p.Theme == "" {
		p.Theme = d.Theme
	}
	return p
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SandboxMode parses the sandbox preference.
func (p Preferences) SandboxMode() sandbox.Mode {
	m, _ := sandbox.ParseMode(p.Sandbox)
	return m
}

// Store manages the persisted preferences
type Store struct {
	path  string
	prefs Preferences
	mu    sync.RWMutex
}

// NewStore creates or loads preferences from XDG_STATE_HOME/aeonsight/
func NewStore() (*Store, error) {
	return Open(Dir())
}

// Open loads preferences from dir, creating it if needed. A missing or
// unreadable file yields defaults.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	store := &Store{
		path:  filepath.Join(dir, prefsFileName),
		prefs: Defaults(),
	}
	if err := store.load(); err != nil {
		// Non-fatal - start with defaults
		store.prefs = Defaults()
	}
	return store, nil
}

// Dir returns XDG_STATE_HOME/aeonsight or ~/.local/state/aeonsight
func Dir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", appName)
}

// Path returns the preferences file location.
func (s *Store) Path() string { return s.path }

// Get returns a copy of the current preferences.
func (s *Store) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Update applies fn, normalizes the result and writes it to disk.
func (s *Store) Update(fn func(*Preferences)) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.prefs
	fn(&next)
	next = next.Normalize()
	prev := s.prefs
	s.prefs = next
	if err := s.save(); err != nil {
		s.prefs = prev
		return prev, err
	}
	return next, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	prefs := Defaults()
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return err
	}
	s.prefs = prefs.Normalize()
	return nil
}

func (s *Store) save() error {
	data, err := yaml.Marshal(s.prefs)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}
