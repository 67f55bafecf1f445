package usecases

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/pkg/geospatial"
)

// SegmentOptions are the gap thresholds that split a route.
type SegmentOptions struct {
	DistanceThresholdMeters float64
	TimeThresholdMinutes    float64
}

// DefaultSegmentOptions returns 500 m and 60 min.
func DefaultSegmentOptions() SegmentOptions {
	return SegmentOptions{DistanceThresholdMeters: 500, TimeThresholdMinutes: 60}
}

// SegmentOptionsFromSettings reads the thresholds from display settings.
func SegmentOptionsFromSettings(s domain.DisplaySettings) SegmentOptions {
	s = s.WithDefaults()
	return SegmentOptions{
		DistanceThresholdMeters: s.RouteDistanceThresholdM,
		TimeThresholdMinutes:    s.RouteTimeThresholdMin,
	}
}

// SegmentRoutes splits ordered points into route segments. A point opens a new segment when
// its distance or elapsed time from the last point of the current segment exceeds the
// threshold. Concatenating the result in order yields the input unchanged.
func SegmentRoutes(points []domain.Point, opts SegmentOptions) []domain.RouteSegment {
	if len(points) == 0 {
		return nil
	}
	def := DefaultSegmentOptions()
	if opts.DistanceThresholdMeters <= 0 {
		opts.DistanceThresholdMeters = def.DistanceThresholdMeters
	}
	if opts.TimeThresholdMinutes <= 0 {
		opts.TimeThresholdMinutes = def.TimeThresholdMinutes
	}

	var segments []domain.RouteSegment
	current := []domain.Point{points[0]}
	for _, p := range points[1:] {
		last := current[len(current)-1]
		dist := geospatial.Haversine(last.Lat, last.Lon, p.Lat, p.Lon)
		minutes := float64(p.Timestamp-last.Timestamp) / 60000

		if dist > opts.DistanceThresholdMeters || minutes > opts.TimeThresholdMinutes {
			segments = append(segments, domain.RouteSegment{Index: len(segments), Points: current})
			current = []domain.Point{p}
			continue
		}
		current = append(current, p)
	}
	return append(segments, domain.RouteSegment{Index: len(segments), Points: current})
}

// SegmentsFeatureCollection renders segments as GeoJSON, one feature per segment so each
// can be styled on its own. Lines are simplified with Douglas-Peucker when tolerance > 0
// (in degrees). Single-point segments become Point features.
func SegmentsFeatureCollection(segments []domain.RouteSegment, tolerance float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, seg := range segments {
		if len(seg.Points) == 0 {
			continue
		}

		var geom orb.Geometry
		if len(seg.Points) == 1 {
			geom = seg.Points[0].Coord().Orb()
		} else {
			ls := make(orb.LineString, len(seg.Points))
			for i, p := range seg.Points {
				ls[i] = p.Coord().Orb()
			}
			if tolerance > 0 {
				ls = simplify.DouglasPeucker(tolerance).LineString(ls.Clone())
			}
			geom = ls
		}

		f := geojson.NewFeature(geom)
		f.ID = seg.Index
		f.Properties["segment_index"] = seg.Index
		f.Properties["point_count"] = len(seg.Points)
		f.Properties["started_at"] = seg.StartedAt().UTC()
		f.Properties["ended_at"] = seg.EndedAt().UTC()
		fc.Append(f)
	}
	return fc
}
