package http

import (
	natsadapter "github.com/samirrijal/locus/internal/adapters/nats"
	"github.com/samirrijal/locus/internal/adapters/postgres"
	"github.com/samirrijal/locus/internal/adapters/valkey"
	"github.com/samirrijal/locus/internal/core/usecases"
)

// BreakerReporter exposes the backend client's circuit-breaker state.
type BreakerReporter interface {
	BreakerState() string
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Maps        *usecases.MapRegistry
	Settings    *usecases.SettingsService
	UserKey     string
	HexMode     usecases.HexMode
	Backend     BreakerReporter
	NATS        *natsadapter.Publisher
	DB          *postgres.DB
	Cache       *valkey.Cache
	OpenAPIPath string
}
