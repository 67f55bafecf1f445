package domain

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// HexFeatureCollection renders styled hexagons as GeoJSON polygons.
func HexFeatureCollection(hexes []StyledHex) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, hx := range hexes {
		f := geojson.NewFeature(hx.Geometry)
		f.ID = hx.ID
		f.Properties["point_count"] = hx.PointCount
		f.Properties["opacity"] = hx.Opacity
		fc.Append(f)
	}
	return fc
}

// HexBucketsFromFeatures reads hex buckets back from a feature collection.
func HexBucketsFromFeatures(fc *geojson.FeatureCollection) []HexBucket {
	out := make([]HexBucket, 0, len(fc.Features))
	for _, f := range fc.Features {
		b := HexBucket{PointCount: int(f.Properties.MustFloat64("point_count", 0))}
		if id, ok := f.ID.(string); ok {
			b.ID = id
		} else if f.ID != nil {
			b.ID = fmt.Sprint(f.ID)
		}
		if f.Geometry != nil {
			b.Bounds = BoundsFromOrb(f.Geometry.Bound())
			if poly, ok := f.Geometry.(orb.Polygon); ok {
				b.Geometry = poly
			}
		}
		out = append(out, b)
	}
	return out
}
