package domain

import (
	"fmt"
	"strings"
)

// InternalFrameMarker prefixes formatted frames that are hidden from the
// shortened stack.
const InternalFrameMarker = "<"

// Default frame prefixes. Functions are matched by their fully qualified name.
var (
	DefaultRenderingFrames = []string{"html/template.", "text/template."}
	DefaultInternalFrames  = []string{"runtime.", "database/sql.", "github.com/jackc/pgx/", "net/http."}
)

// StackPolicy formats frames and flags the ones that belong to library or
// runtime code.
type StackPolicy struct {
	InternalPrefixes []string
}

func DefaultStackPolicy() StackPolicy {
	return StackPolicy{InternalPrefixes: append([]string(nil), DefaultInternalFrames...)}
}

// FormatFrame renders a frame as "file:line (function)". Internal and
// synthetic frames are rendered as "<function>".
func (p StackPolicy) FormatFrame(f Frame) string {
	if p.isInternal(f) {
		name := f.Function
		if name == "" {
			name = f.File
		}
		return InternalFrameMarker + name + ">"
	}
	if f.Function == "" {
		return fmt.Sprintf("%s:%d", f.File, f.Line)
	}
	return fmt.Sprintf("%s:%d (%s)", f.File, f.Line, f.Function)
}

func (p StackPolicy) isInternal(f Frame) bool {
	// The Go toolchain reports compiler-generated wrappers as "<autogenerated>".
	if strings.HasPrefix(f.File, InternalFrameMarker) {
		return true
	}
	for _, prefix := range p.InternalPrefixes {
		if strings.HasPrefix(f.Function, prefix) {
			return true
		}
	}
	return false
}

// Format renders a whole stack.
func (p StackPolicy) Format(frames []Frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = p.FormatFrame(f)
	}
	return out
}

// Shorten drops formatted frames carrying the internal marker.
func Shorten(formatted []string) []string {
	out := make([]string, 0, len(formatted))
	for _, s := range formatted {
		if !strings.HasPrefix(s, InternalFrameMarker) {
			out = append(out, s)
		}
	}
	return out
}

// RenderClassifier decides whether a formatted stack was captured while a
// template was being rendered.
type RenderClassifier interface {
	IsRendering(stack []string) bool
}

// FrameClassifier matches any frame containing one of its markers.
type FrameClassifier struct {
	Markers []string
}

func NewFrameClassifier(markers []string) *FrameClassifier {
	if len(markers) == 0 {
		markers = DefaultRenderingFrames
	}
	return &FrameClassifier{Markers: markers}
}

func (c *FrameClassifier) IsRendering(stack []string) bool {
	for _, frame := range stack {
		for _, m := range c.Markers {
			if strings.Contains(frame, m) {
				return true
			}
		}
	}
	return false
}
