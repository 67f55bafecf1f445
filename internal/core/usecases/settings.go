package usecases

import (
	"context"
	"log/slog"
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/ports"
)

// SettingsService resolves a user's display settings: the backend is authoritative and each
// successful read is written through to the local repository, which serves as the fallback
// when the backend is unreachable. Missing values take the built-in defaults.
type SettingsService struct {
	api  ports.SettingsAPI
	repo ports.SettingsRepository
}

// NewSettingsService creates a new SettingsService. repo may be nil.
func NewSettingsService(api ports.SettingsAPI, repo ports.SettingsRepository) *SettingsService {
	return &SettingsService{api: api, repo: repo}
}

// Load returns the settings for userKey.
func (s *SettingsService) Load(ctx context.Context, userKey string) domain.DisplaySettings {
	remote, err := s.api.GetSettings(ctx)
	if err == nil && remote != nil {
		settings := remote.WithDefaults()
		if s.repo != nil {
			if err := s.repo.Save(ctx, userKey, settings); err != nil {
				slog.Warn("save settings fallback", "user", userKey, "error", err)
			}
		}
		return settings
	}
	slog.Warn("backend settings unavailable, using fallback", "user", userKey, "error", err)

	if s.repo != nil {
		if local, err := s.repo.Get(ctx, userKey); err == nil && local != nil {
			return local.WithDefaults()
		}
	}
	return domain.DefaultDisplaySettings()
}

// Location resolves the settings' timezone, falling back to UTC.
func Location(settings domain.DisplaySettings) *time.Location {
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
