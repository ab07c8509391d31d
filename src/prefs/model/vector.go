package model

const (
	// SegmentDim is the width of one domain (or collective) segment.
	SegmentDim = 384
	// SegmentCount is movie, music, product and collective.
	SegmentCount = 4
	// VectorDim is the width of the stored composite preference vector.
	VectorDim = SegmentDim * SegmentCount
)

const collectiveIndex = SegmentCount - 1

// CompositeVector is the 1536-dimension per-user preference vector made of
// four contiguous 384-dimension segments: movie, music, product, collective.
type CompositeVector []float32

// Segments is a composite vector split into its four segments.
type Segments [SegmentCount][]float32

// NewCompositeVector copies values into a composite vector after checking its width.
func NewCompositeVector(values []float32) (CompositeVector, error) {
	if len(values) != VectorDim {
		return nil, Validation("composite vector", "", "expected %d dimensions, got %d", VectorDim, len(values))
	}
	return CompositeVector(append([]float32(nil), values...)), nil
}

// ZeroVector is the cold-start composite vector.
func ZeroVector() CompositeVector {
	return make(CompositeVector, VectorDim)
}

// Split copies the vector into four independent segments.
func (v CompositeVector) Split() Segments {
	var s Segments
	for i := 0; i < SegmentCount; i++ {
		seg := make([]float32, SegmentDim)
		if lo := i * SegmentDim; lo < len(v) {
			copy(seg, v[lo:min(lo+SegmentDim, len(v))])
		}
		s[i] = seg
	}
	return s
}

// Segment returns a copy of the domain's segment.
func (v CompositeVector) Segment(d Domain) []float32 {
	return v.Split()[d.Index()]
}

// Collective returns a copy of the collective segment.
func (v CompositeVector) Collective() []float32 {
	return v.Split()[collectiveIndex]
}

// Domain returns the segment for d.
func (s Segments) Domain(d Domain) []float32 { return s[d.Index()] }

// SetDomain replaces the segment for d.
func (s *Segments) SetDomain(d Domain, seg []float32) { s[d.Index()] = seg }

// Collective returns the collective segment.
func (s Segments) Collective() []float32 { return s[collectiveIndex] }

// SetCollective replaces the collective segment.
func (s *Segments) SetCollective(seg []float32) { s[collectiveIndex] = seg }

// Join concatenates the segments in fixed order (movie, music, product, collective).
func (s Segments) Join() CompositeVector {
	out := make(CompositeVector, 0, VectorDim)
	for _, seg := range s {
		padded := make([]float32, SegmentDim)
		copy(padded, seg)
		out = append(out, padded...)
	}
	return out
}
