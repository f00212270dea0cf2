package vector

import "github.com/viant/vec/search"

// flattenSteps is the number of samples taken per segment when measuring
// distance to a path. Enough for pointer-sized hit targets on a canvas.
const flattenSteps = 16

// DistanceTo returns the minimum Euclidean distance from q to the sampled
// points of the path. Used by front-ends for hit-testing elements; it is a
// sampled approximation, not an analytic projection.
func (p Path) DistanceTo(q Point) float32 {
	query := search.Float32s{q.X, q.Y}
	best := query.EuclideanDistance([]float32{p.Start.X, p.Start.Y})
	for i := range p.Segments {
		for s := 1; s <= flattenSteps; s++ {
			pt := p.Eval(i, float32(s)/flattenSteps)
			if d := query.EuclideanDistance([]float32{pt.X, pt.Y}); d < best {
				best = d
			}
		}
	}
	return best
}

// Hit reports whether q lies within tolerance of the path.
func (p Path) Hit(q Point, tolerance float32) bool {
	return p.DistanceTo(q) <= tolerance
}
