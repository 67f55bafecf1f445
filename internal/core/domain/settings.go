package domain

// DisplaySettings are the per-user map preferences the engine reads as configuration.
type DisplaySettings struct {
	MapStyle                string          `json:"map_style"`
	Timezone                string          `json:"timezone"`
	RouteDistanceThresholdM float64         `json:"meters_between_routes"`
	RouteTimeThresholdMin   float64         `json:"minutes_between_routes"`
	ReplaySpeed             float64         `json:"replay_speed"`
	FogClearRadiusM         float64         `json:"fog_of_war_meters"`
	HexSizeM                float64         `json:"hexagon_size"`
	Layers                  map[string]bool `json:"enabled_map_layers,omitempty"`
}

// DefaultDisplaySettings returns the built-in defaults.
func DefaultDisplaySettings() DisplaySettings {
	return DisplaySettings{
		MapStyle:                "light",
		Timezone:                "UTC",
		RouteDistanceThresholdM: 500,
		RouteTimeThresholdMin:   60,
		ReplaySpeed:             1,
		FogClearRadiusM:         50,
		HexSizeM:                1000,
	}
}

// WithDefaults fills zero values from the defaults.
func (s DisplaySettings) WithDefaults() DisplaySettings {
	d := DefaultDisplaySettings()
	if s.MapStyle == "" {
		s.MapStyle = d.MapStyle
	}
	if s.Timezone == "" {
		s.Timezone = d.Timezone
	}
	if s.RouteDistanceThresholdM <= 0 {
		s.RouteDistanceThresholdM = d.RouteDistanceThresholdM
	}
	if s.RouteTimeThresholdMin <= 0 {
		s.RouteTimeThresholdMin = d.RouteTimeThresholdMin
	}
	if s.ReplaySpeed <= 0 {
		s.ReplaySpeed = d.ReplaySpeed
	}
	if s.FogClearRadiusM <= 0 {
		s.FogClearRadiusM = d.FogClearRadiusM
	}
	if s.HexSizeM <= 0 {
		s.HexSizeM = d.HexSizeM
	}
	return s
}
