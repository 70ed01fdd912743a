package policy

import "github.com/guillermoBallester/querylens/internal/core/domain"

// StackPolicy returns the frame formatting rules. With no internal prefixes
// configured the built-in list applies.
func (p *Policy) StackPolicy() domain.StackPolicy {
	sp := domain.DefaultStackPolicy()
	if p == nil || len(p.Stack.Internal) == 0 {
		return sp
	}
	if p.Stack.ExtendDefaults {
		sp.InternalPrefixes = append(sp.InternalPrefixes, p.Stack.Internal...)
		return sp
	}
	sp.InternalPrefixes = append([]string(nil), p.Stack.Internal...)
	return sp
}

// Classifier returns the rendering detector.
func (p *Policy) Classifier() *domain.FrameClassifier {
	if p == nil || len(p.Stack.Rendering) == 0 {
		return domain.NewFrameClassifier(nil)
	}
	markers := append([]string(nil), p.Stack.Rendering...)
	if p.Stack.ExtendDefaults {
		markers = append(append([]string(nil), domain.DefaultRenderingFrames...), markers...)
	}
	return domain.NewFrameClassifier(markers)
}

// MaskSpec extracts a column-name → mask-type map for replay masking.
func (p *Policy) MaskSpec() map[string]domain.MaskType {
	if p == nil || len(p.Columns) == 0 {
		return nil
	}
	spec := make(map[string]domain.MaskType, len(p.Columns))
	for col, rule := range p.Columns {
		spec[col] = rule.Mask
	}
	return spec
}
