// Package assets loads and validates the station sound assets a bulletin
// needs before any speech is synthesised.
package assets

import (
	"sort"
	"time"

	"github.com/example/go-news-bulletin/internal/audio"
	"github.com/example/go-news-bulletin/internal/config"
)

// Spec is one asset entry of the mix plan.
type Spec struct {
	Name string
	config.AssetConfig
	// Bed-only settings.
	SpanMS int64
	Loop   bool
}

// Plan is the read-only set of assets a run must load.
type Plan struct {
	Format audio.Format
	Specs  []Spec
}

// PlanFromConfig builds the plan for every marker asset plus the bed when enabled.
// Relative paths resolve against the assets directory.
func PlanFromConfig(cfg config.Config) Plan {
	p := Plan{Format: cfg.WorkingFormat()}
	for _, name := range config.MarkerAssets {
		a := cfg.Mix.Assets[name]
		a.Path = cfg.AssetPath(a.Path)
		p.Specs = append(p.Specs, Spec{Name: name, AssetConfig: a})
	}
	if bed := cfg.Mix.Bed; bed.Enabled {
		a := bed.AssetConfig
		a.Path = cfg.AssetPath(a.Path)
		p.Specs = append(p.Specs, Spec{Name: config.AssetBed, AssetConfig: a, SpanMS: bed.SpanMS, Loop: bed.Loop})
	}

	return p
}

// Asset is a decoded, validated sound asset. Its Buffer is shared and must
// be cloned before modification.
type Asset struct {
	Spec
	Buffer audio.Buffer
}

func (a *Asset) Duration() time.Duration { return a.Buffer.Duration() }

// Set holds the validated assets of one run.
type Set struct {
	format audio.Format
	assets map[string]*Asset
}

// NewSet builds a set directly from decoded assets.
func NewSet(format audio.Format, list ...*Asset) *Set {
	s := &Set{format: format, assets: make(map[string]*Asset, len(list))}
	for _, a := range list {
		s.assets[a.Name] = a
	}

	return s
}

func (s *Set) Format() audio.Format { return s.format }

// Get returns the named asset.
func (s *Set) Get(name string) (*Asset, bool) {
	if s == nil {
		return nil, false
	}
	a, ok := s.assets[name]

	return a, ok
}

// Bed returns the background bed if the plan enabled one.
func (s *Set) Bed() (*Asset, bool) {
	return s.Get(config.AssetBed)
}

// Names lists the loaded asset names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.assets))
	for n := range s.assets {
		names = append(names, n)
	}
	sort.Strings(names)

	return names
}
