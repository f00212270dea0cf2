package vector

// Segment is one cubic Bezier segment. The segment's start point is the
// previous segment's End (or the path's Start for the first segment).
type Segment struct {
	CP1, CP2, End Point
}

// Path is an ordered sequence of cubic Bezier segments starting at Start.
// Paths are value types and structurally compared; use Equal rather than ==
// (the segment slice makes Path uncomparable).
type Path struct {
	Start    Point
	Segments []Segment
}

// NewPath creates a path from a start point and segments. The segment
// slice is copied so the caller retains ownership of its argument.
func NewPath(start Point, segments ...Segment) Path {
	segs := make([]Segment, len(segments))
	copy(segs, segments)
	return Path{Start: start, Segments: segs}
}

// Equal reports whether two paths have identical control points.
func (p Path) Equal(q Path) bool {
	if p.Start != q.Start || len(p.Segments) != len(q.Segments) {
		return false
	}
	for i := range p.Segments {
		if p.Segments[i] != q.Segments[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the path.
func (p Path) Clone() Path {
	return NewPath(p.Start, p.Segments...)
}

// Eval evaluates segment i of the path at parameter t in [0, 1] using
// de Casteljau subdivision on the four control points.
func (p Path) Eval(i int, t float32) Point {
	start := p.Start
	if i > 0 {
		start = p.Segments[i-1].End
	}
	seg := p.Segments[i]
	a := start.Lerp(seg.CP1, t)
	b := seg.CP1.Lerp(seg.CP2, t)
	c := seg.CP2.Lerp(seg.End, t)
	return a.Lerp(b, t).Lerp(c, t)
}

// Bounds returns the bounding rectangle of the path's control points.
// A cubic curve is contained in its control polygon, so this is a valid
// (conservative) bounding region.
func (p Path) Bounds() Rect {
	r := Rect{Min: p.Start, Max: p.Start}
	for _, seg := range p.Segments {
		r = r.Expand(seg.CP1)
		r = r.Expand(seg.CP2)
		r = r.Expand(seg.End)
	}
	return r
}

// ControlPoints returns the path's control points in order, starting with
// the path's start point.
func (p Path) ControlPoints() []Point {
	pts := make([]Point, 0, 1+3*len(p.Segments))
	pts = append(pts, p.Start)
	for _, seg := range p.Segments {
		pts = append(pts, seg.CP1, seg.CP2, seg.End)
	}
	return pts
}
