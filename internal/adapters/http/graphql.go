package http

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/usecases"
)

func sourceMap(p graphql.ResolveParams) (*usecases.MapView, error) {
	v, ok := p.Source.(*usecases.MapView)
	if !ok {
		return nil, fmt.Errorf("unexpected source %T", p.Source)
	}
	return v, nil
}

// buildSchema creates the GraphQL schema for read queries over open map views.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	pointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Point",
		Fields: graphql.Fields{
			"id":        &graphql.Field{Type: graphql.ID},
			"lat":       &graphql.Field{Type: graphql.Float},
			"lon":       &graphql.Field{Type: graphql.Float},
			"timestamp": &graphql.Field{Type: graphql.Float, Description: "Unix milliseconds"},
			"altitude":  &graphql.Field{Type: graphql.Float},
			"velocity":  &graphql.Field{Type: graphql.Float},
			"battery":   &graphql.Field{Type: graphql.Int},
		},
	})

	dayType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Day",
		Fields: graphql.Fields{
			"key":    &graphql.Field{Type: graphql.String},
			"points": &graphql.Field{Type: graphql.Int},
		},
	})

	segmentType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RouteSegment",
		Fields: graphql.Fields{
			"index":       &graphql.Field{Type: graphql.Int},
			"point_count": &graphql.Field{Type: graphql.Int},
			"started_at":  &graphql.Field{Type: graphql.DateTime},
			"ended_at":    &graphql.Field{Type: graphql.DateTime},
			"coordinates": &graphql.Field{Type: graphql.NewList(graphql.NewList(graphql.Float))},
		},
	})

	visitType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Visit",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.ID},
			"name":       &graphql.Field{Type: graphql.String},
			"status":     &graphql.Field{Type: graphql.String},
			"started_at": &graphql.Field{Type: graphql.DateTime},
			"ended_at":   &graphql.Field{Type: graphql.DateTime},
			"center_lat": &graphql.Field{Type: graphql.Float},
			"center_lon": &graphql.Field{Type: graphql.Float},
			"radius":     &graphql.Field{Type: graphql.Float},
			"place_id": &graphql.Field{
				Type: graphql.ID,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if v, ok := p.Source.(domain.Visit); ok && v.PlaceID != nil {
						return *v.PlaceID, nil
					}
					return nil, nil
				},
			},
		},
	})

	positionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TimelinePosition",
		Fields: graphql.Fields{
			"minute":            &graphql.Field{Type: graphql.Int},
			"index":             &graphql.Field{Type: graphql.Int},
			"same_minute_count": &graphql.Field{Type: graphql.Int},
			"point":             &graphql.Field{Type: pointType},
		},
	})

	replayType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ReplayState",
		Fields: graphql.Fields{
			"day_key":          &graphql.Field{Type: graphql.String},
			"point_index":      &graphql.Field{Type: graphql.Int},
			"speed_multiplier": &graphql.Field{Type: graphql.Float},
			"playing":          &graphql.Field{Type: graphql.Boolean},
			"current":          &graphql.Field{Type: geoPointType},
		},
	})

	noticeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Notice",
		Fields: graphql.Fields{
			"level":   &graphql.Field{Type: graphql.String},
			"message": &graphql.Field{Type: graphql.String},
			"at":      &graphql.Field{Type: graphql.DateTime},
		},
	})

	sharingType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Sharing",
		Fields: graphql.Fields{
			"enabled":    &graphql.Field{Type: graphql.Boolean},
			"duration":   &graphql.Field{Type: graphql.String},
			"expires_at": &graphql.Field{Type: graphql.DateTime},
		},
	})

	mapType := graphql.NewObject(graphql.ObjectConfig{
		Name: "MapView",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type: graphql.ID,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					v, err := sourceMap(p)
					if err != nil {
						return nil, err
					}
					return v.ID, nil
				},
			},
			"current_day": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					v, err := sourceMap(p)
					if err != nil {
						return nil, err
					}
					return v.Timeline.CurrentDay(), nil
				},
			},
			"days": &graphql.Field{
				Type:        graphql.NewList(dayType),
				Description: "Days with points, oldest first",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					v, err := sourceMap(p)
					if err != nil {
						return nil, err
					}
					var out []map[string]interface{}
					for _, b := range v.Timeline.Buckets() {
						out = append(out, map[string]interface{}{"key": b.Key, "points": len(b.Points)})
					}
					return out, nil
				},
			},
			"segments": &graphql.Field{
				Type:        graphql.NewList(segmentType),
				Description: "Route segments of a day (default: the current day)",
				Args: graphql.FieldConfigArgument{
					"day": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					v, err := sourceMap(p)
					if err != nil {
						return nil, err
					}
					day := p.Args["day"].(string)
					var out []map[string]interface{}
					for _, seg := range v.Segments(day) {
						coords := make([][]float64, len(seg.Points))
						for i, pt := range seg.Points {
							coords[i] = []float64{pt.Lon, pt.Lat}
						}
						out = append(out, map[string]interface{}{
							"index":       seg.Index,
							"point_count": len(seg.Points),
							"started_at":  seg.StartedAt(),
							"ended_at":    seg.EndedAt(),
							"coordinates": coords,
						})
					}
					return out, nil
				},
			},
			"visits": &graphql.Field{
				Type:        graphql.NewList(visitType),
				Description: "Loaded visits, optionally filtered by status",
				Args: graphql.FieldConfigArgument{
					"status": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					v, err := sourceMap(p)
					if err != nil {
						return nil, err
					}
					status := domain.VisitStatus(p.Args["status"].(string))
					if status != "" && !status.Valid() {
						return nil, fmt.Errorf("unknown visit status %q", status)
					}
					return v.Visits.Visits(status), nil
				},
			},
			"position": &graphql.Field{
				Type:        positionType,
				Description: "Point at a minute of the current day, or the nearest minute with data",
				Args: graphql.FieldConfigArgument{
					"minute": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					v, err := sourceMap(p)
					if err != nil {
						return nil, err
					}
					minute := p.Args["minute"].(int)
					if minute < 0 || minute >= usecases.MinutesPerDay {
						return nil, fmt.Errorf("minute must be between 0 and 1439")
					}
					pt, idx, ok := v.Timeline.PointAtPosition(minute)
					if !ok {
						return nil, nil
					}
					res := positionResponse(v, pt)
					res.Index = idx
					return map[string]interface{}{
						"minute":            res.Minute,
						"index":             res.Index,
						"same_minute_count": res.SameMinuteCount,
						"point":             res.Point,
					}, nil
				},
			},
			"replay": &graphql.Field{
				Type: replayType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					v, err := sourceMap(p)
					if err != nil {
						return nil, err
					}
					return v.Replay.State(), nil
				},
			},
			"notices": &graphql.Field{
				Type: graphql.NewList(noticeType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					v, err := sourceMap(p)
					if err != nil {
						return nil, err
					}
					return v.Notices.Recent(), nil
				},
			},
			"sharing": &graphql.Field{
				Type: sharingType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					v, err := sourceMap(p)
					if err != nil {
						return nil, err
					}
					return v.Sharing.State(), nil
				},
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"maps": &graphql.Field{
				Type:        graphql.NewList(mapType),
				Description: "List the open map views",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var views []*usecases.MapView
					for _, id := range deps.Maps.IDs() {
						if v, err := deps.Maps.Get(id); err == nil {
							views = append(views, v)
						}
					}
					return views, nil
				},
			},
			"map": &graphql.Field{
				Type:        mapType,
				Description: "Get a map view by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					return deps.Maps.Get(id)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Query == "" {
			return errBadRequest(c, "query is required")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
