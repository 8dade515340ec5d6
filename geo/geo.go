package geo

import (
	"math"
)

// KmPerDegree is the length of one degree of latitude.
const KmPerDegree = 111.32

type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether p is a finite WGS84 coordinate.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// KmToDegrees converts a distance to degrees of latitude. The same delta is
// applied to longitude; at city scale the error only widens the box.
func KmToDegrees(km float64) float64 {
	return km / KmPerDegree
}

// BoundsOf returns the box enclosing points grown by bufferKm on every side.
// ok is false when points holds no valid coordinate.
func BoundsOf(points []Point, bufferKm float64) (box BoundingBox, ok bool) {
	for _, p := range points {
		if !p.Valid() {
			continue
		}
		if !ok {
			box = BoundingBox{MinLat: p.Lat, MaxLat: p.Lat, MinLon: p.Lon, MaxLon: p.Lon}
			ok = true
			continue
		}
		box.MinLat = math.Min(box.MinLat, p.Lat)
		box.MaxLat = math.Max(box.MaxLat, p.Lat)
		box.MinLon = math.Min(box.MinLon, p.Lon)
		box.MaxLon = math.Max(box.MaxLon, p.Lon)
	}
	if !ok {
		return BoundingBox{}, false
	}
	return box.Expand(bufferKm), true
}

// Around returns a square box of half-width bufferKm centred on p.
func Around(p Point, bufferKm float64) BoundingBox {
	return BoundingBox{MinLat: p.Lat, MaxLat: p.Lat, MinLon: p.Lon, MaxLon: p.Lon}.Expand(bufferKm)
}

func (b BoundingBox) Expand(km float64) BoundingBox {
	d := KmToDegrees(km)
	return BoundingBox{
		MinLat: b.MinLat - d,
		MaxLat: b.MaxLat + d,
		MinLon: b.MinLon - d,
		MaxLon: b.MaxLon + d,
	}
}

func (b BoundingBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

func (b BoundingBox) Center() Point {
	return Point{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// Sample picks at most max points spread evenly along points, always keeping
// the first and last. Invalid coordinates are dropped before sampling.
func Sample(points []Point, max int) []Point {
	valid := make([]Point, 0, len(points))
	for _, p := range points {
		if p.Valid() {
			valid = append(valid, p)
		}
	}
	if max <= 0 || len(valid) == 0 {
		return nil
	}
	if len(valid) <= max {
		return valid
	}
	if max == 1 {
		return valid[:1]
	}

	out := make([]Point, 0, max)
	last := len(valid) - 1
	for i := 0; i < max; i++ {
		idx := int(math.Round(float64(i) * float64(last) / float64(max-1)))
		out = append(out, valid[idx])
	}
	return out
}
