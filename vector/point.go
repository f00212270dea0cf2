package vector

// Point is an immutable 2D coordinate pair. Coordinates are float32 to
// match the on-disk encoding; canvas space, not pixel space.
type Point struct {
	X, Y float32
}

// Lerp linearly interpolates between p and q at parameter t.
// t=0 returns p, t=1 returns q.
func (p Point) Lerp(q Point, t float32) Point {
	return Point{
		X: p.X + (q.X-p.X)*t,
		Y: p.Y + (q.Y-p.Y)*t,
	}
}

// Rect is an axis-aligned rectangle. Min is the top-left corner (minimum
// coordinates), Max the bottom-right.
type Rect struct {
	Min, Max Point
}

// NewRect creates a rectangle from two points, normalized so Min <= Max.
func NewRect(p1, p2 Point) Rect {
	return Rect{
		Min: Point{X: min32(p1.X, p2.X), Y: min32(p1.Y, p2.Y)},
		Max: Point{X: max32(p1.X, p2.X), Y: max32(p1.Y, p2.Y)},
	}
}

// Width returns the width of the rectangle.
func (r Rect) Width() float32 { return r.Max.X - r.Min.X }

// Height returns the height of the rectangle.
func (r Rect) Height() float32 { return r.Max.Y - r.Min.Y }

// Union returns the smallest rectangle containing both r and other.
func (r Rect) Union(other Rect) Rect {
	return Rect{
		Min: Point{X: min32(r.Min.X, other.Min.X), Y: min32(r.Min.Y, other.Min.Y)},
		Max: Point{X: max32(r.Max.X, other.Max.X), Y: max32(r.Max.Y, other.Max.Y)},
	}
}

// Contains returns true if the point is inside the rectangle.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Expand grows the rectangle to include p.
func (r Rect) Expand(p Point) Rect {
	return Rect{
		Min: Point{X: min32(r.Min.X, p.X), Y: min32(r.Min.Y, p.Y)},
		Max: Point{X: max32(r.Max.X, p.X), Y: max32(r.Max.Y, p.Y)},
	}
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
