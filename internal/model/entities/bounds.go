package entities

// Bounds is a geographic bounding box. The zero value means "unbounded".
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

func (b Bounds) IsZero() bool { return b == Bounds{} }

func (b Bounds) Contains(c Coordinates) bool {
	if b.IsZero() {
		return true
	}
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}

// Clamp moves c onto the nearest point of the box.
func (b Bounds) Clamp(c Coordinates) Coordinates {
	if b.IsZero() {
		return c
	}
	c.Lat = clampRange(c.Lat, b.MinLat, b.MaxLat)
	c.Lon = clampRange(c.Lon, b.MinLon, b.MaxLon)
	return c
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// KualaLumpur is the operational region of the demo registry.
var KualaLumpur = Bounds{MinLat: 3.00, MaxLat: 3.30, MinLon: 101.55, MaxLon: 101.80}
