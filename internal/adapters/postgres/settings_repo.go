package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/ports"
)

var _ ports.SettingsRepository = (*SettingsRepo)(nil)

// SettingsRepo implements ports.SettingsRepository on the user_settings table.
type SettingsRepo struct {
	db *DB
}

func NewSettingsRepo(db *DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

func (r *SettingsRepo) Get(ctx context.Context, userKey string) (*domain.DisplaySettings, error) {
	var raw []byte
	err := r.db.Pool.QueryRow(ctx, `
		SELECT settings FROM user_settings WHERE user_key = $1
	`, userKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("settings for %q: %w", userKey, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var s domain.DisplaySettings
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &s, nil
}

func (r *SettingsRepo) Save(ctx context.Context, userKey string, settings domain.DisplaySettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO user_settings (user_key, settings, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_key) DO UPDATE SET settings = EXCLUDED.settings, updated_at = now()
	`, userKey, raw)
	return err
}

// Delete removes the stored settings of a user.
func (r *SettingsRepo) Delete(ctx context.Context, userKey string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM user_settings WHERE user_key = $1`, userKey)
	return err
}
