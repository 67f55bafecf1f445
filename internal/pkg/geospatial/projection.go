package geospatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Screen maps between WGS84 coordinates and pixels of a Web-Mercator viewport
// centered on (CenterLat, CenterLon).
type Screen struct {
	CenterLat float64
	CenterLon float64
	Zoom      float64
	Width     int
	Height    int
}

// resolution is the Mercator meters per pixel, independent of latitude.
func (s Screen) resolution() float64 {
	return EarthCircumferenceMeters / math.Pow(2, s.Zoom+8)
}

func (s Screen) center() orb.Point {
	return project.WGS84.ToMercator(orb.Point{s.CenterLon, s.CenterLat})
}

// ToPixel projects a coordinate into screen pixels. The origin is the top-left corner.
func (s Screen) ToPixel(lat, lon float64) (x, y float64) {
	c := s.center()
	m := project.WGS84.ToMercator(orb.Point{lon, lat})
	res := s.resolution()
	x = float64(s.Width)/2 + (m[0]-c[0])/res
	y = float64(s.Height)/2 - (m[1]-c[1])/res
	return x, y
}

// ToLatLon converts a screen pixel back into a coordinate.
func (s Screen) ToLatLon(x, y float64) (lat, lon float64) {
	c := s.center()
	res := s.resolution()
	m := orb.Point{
		c[0] + (x-float64(s.Width)/2)*res,
		c[1] - (y-float64(s.Height)/2)*res,
	}
	p := project.Mercator.ToWGS84(m)
	return p.Lat(), p.Lon()
}
