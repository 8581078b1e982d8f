// SPDX-License-Identifier: MIT
// Package viz defines the visualization contract and the scheduler that
// decides which visualization is on screen. The package deliberately has no
// graphics dependency: Draw targets are expressed through the small Surface
// interface and the host renderer supplies the implementation.
package viz

import (
	"fmt"

	"djviz/internal/analysis"
)

// Bounds is the pixel region a visualization draws into.
type Bounds struct {
	X, Y, W, H int
}

// Color is a straight-alpha RGBA pixel value.
type Color struct {
	R, G, B, A uint8
}

// Surface is the minimal drawing target handed to visualizations. The host
// renderer adapts its framebuffer, terminal cells or GPU texture to it.
type Surface interface {
	Size() (w, h int)
	Set(x, y int, c Color)
	Fill(b Bounds, c Color)
}

// Visualization is one drawable effect. Update receives every analysis frame
// whether or not the visualization is currently shown, so effects with
// internal smoothing stay warm across switches. Draw must only read state
// written by Update.
type Visualization interface {
	Name() string
	Update(a *analysis.AudioAnalysis)
	Draw(s Surface, b Bounds)
}

// Registry is an ordered collection of visualizations. Order matters: the
// scheduler addresses entries by index and config energy ranges are parallel
// to it.
type Registry struct {
	entries []Visualization
}

// NewRegistry builds a registry from the given visualizations.
func NewRegistry(vizs ...Visualization) *Registry {
	return &Registry{entries: vizs}
}

// Register appends a visualization. Duplicate names are rejected so lookup
// stays unambiguous.
func (r *Registry) Register(v Visualization) error {
	for _, e := range r.entries {
		if e.Name() == v.Name() {
			return fmt.Errorf("visualization %q already registered", v.Name())
		}
	}
	r.entries = append(r.entries, v)
	return nil
}

// Len returns the number of registered visualizations.
func (r *Registry) Len() int {
	return len(r.entries)
}

// At returns the visualization at index i.
func (r *Registry) At(i int) Visualization {
	return r.entries[i]
}

// IndexOf returns the index of the named visualization, or -1.
func (r *Registry) IndexOf(name string) int {
	for i, e := range r.entries {
		if e.Name() == name {
			return i
		}
	}
	return -1
}
