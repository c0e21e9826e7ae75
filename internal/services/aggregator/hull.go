package aggregator

import (
	"sort"

	"github.com/LeonardoBeccarini/citywatch/internal/model/entities"
)

// ConvexHull returns the hull of pts counter-clockwise (lon as x, lat as y),
// starting from the lowest-left point. Duplicates and collinear points are
// dropped. Fewer than three distinct points are returned as they are, sorted.
func ConvexHull(pts []entities.Coordinates) []entities.Coordinates {
	if len(pts) == 0 {
		return nil
	}
	p := append([]entities.Coordinates(nil), pts...)
	sort.Slice(p, func(i, j int) bool {
		if p[i].Lon != p[j].Lon {
			return p[i].Lon < p[j].Lon
		}
		return p[i].Lat < p[j].Lat
	})
	uniq := p[:1]
	for _, c := range p[1:] {
		if c != uniq[len(uniq)-1] {
			uniq = append(uniq, c)
		}
	}
	if len(uniq) < 3 {
		return uniq
	}

	cross := func(o, a, b entities.Coordinates) float64 {
		return (a.Lon-o.Lon)*(b.Lat-o.Lat) - (a.Lat-o.Lat)*(b.Lon-o.Lon)
	}

	hull := make([]entities.Coordinates, 0, 2*len(uniq))
	// lower
	for _, c := range uniq {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], c) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, c)
	}
	// upper
	lower := len(hull) + 1
	for i := len(uniq) - 2; i >= 0; i-- {
		c := uniq[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], c) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, c)
	}
	hull = hull[:len(hull)-1]
	if len(hull) < 3 {
		// all collinear: keep the two extremes
		return []entities.Coordinates{uniq[0], uniq[len(uniq)-1]}
	}
	return hull
}
