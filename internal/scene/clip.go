package scene

type point2 struct{ X, Y float64 }

// clipPolygon clips a convex polygon to the rectangle [0,w]x[0,h]
// (Sutherland-Hodgman).
func clipPolygon(pts []point2, w, h float64) []point2 {
	edges := []struct {
		inside    func(p point2) bool
		intersect func(a, b point2) point2
	}{
		{func(p point2) bool { return p.X >= 0 }, func(a, b point2) point2 { return lerpX(a, b, 0) }},
		{func(p point2) bool { return p.X <= w }, func(a, b point2) point2 { return lerpX(a, b, w) }},
		{func(p point2) bool { return p.Y >= 0 }, func(a, b point2) point2 { return lerpY(a, b, 0) }},
		{func(p point2) bool { return p.Y <= h }, func(a, b point2) point2 { return lerpY(a, b, h) }},
	}
	out := pts
	for _, e := range edges {
		if len(out) == 0 {
			return nil
		}
		in := out
		out = make([]point2, 0, len(in)+2)
		prev := in[len(in)-1]
		for _, cur := range in {
			switch {
			case e.inside(cur) && e.inside(prev):
				out = append(out, cur)
			case e.inside(cur):
				out = append(out, e.intersect(prev, cur), cur)
			case e.inside(prev):
				out = append(out, e.intersect(prev, cur))
			}
			prev = cur
		}
	}
	return out
}

func lerpX(a, b point2, x float64) point2 {
	t := (x - a.X) / (b.X - a.X)
	return point2{X: x, Y: a.Y + t*(b.Y-a.Y)}
}

func lerpY(a, b point2, y float64) point2 {
	t := (y - a.Y) / (b.Y - a.Y)
	return point2{X: a.X + t*(b.X-a.X), Y: y}
}
