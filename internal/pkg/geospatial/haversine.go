package geospatial

import "math"

const (
	earthRadiusKm = 6371.0

	// EarthCircumferenceMeters is the equatorial circumference used by Web-Mercator tiles.
	EarthCircumferenceMeters = 40075016.686
)

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// BoundingBox returns a bounding box around a point with the given radius in meters.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := radiusMeters / 111320.0
	lonDelta := radiusMeters / (111320.0 * math.Cos(toRad(lat)))

	return lat - latDelta, lon - lonDelta, lat + latDelta, lon + lonDelta
}

// MetersPerPixel is the ground resolution of a 256px-tile map at zoom z and latitude lat.
func MetersPerPixel(zoom, lat float64) float64 {
	return EarthCircumferenceMeters * math.Cos(toRad(lat)) / math.Pow(2, zoom+8)
}

// Lerp interpolates linearly between a and b; t is clamped to [0, 1].
func Lerp(a, b, t float64) float64 {
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return a + (b-a)*t
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
