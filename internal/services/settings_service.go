package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/repo"
)

// SettingsService owns the process-wide simulation flag.
type SettingsService struct {
	DB *gorm.DB
	// DefaultSimulation applies while no setting row exists.
	DefaultSimulation bool
}

// SimulationMode returns the stored flag, or the configured default when the
// flag was never written. When the flag cannot be read or decoded, simulation
// is forced on: a broken settings store must never cause a real post.
func (s *SettingsService) SimulationMode(ctx context.Context) (bool, error) {
	var on bool
	row, err := repo.GetSetting(ctx, s.DB, domain.SettingSimulationMode, &on)
	switch {
	case err == nil:
		return on, nil
	case errors.Is(err, repo.ErrNotFound):
		return s.DefaultSimulation, nil
	case row != nil:
		zerolog.Ctx(ctx).Warn().Err(err).Str("value", row.ValueJSON).Msg("unreadable simulation flag; forcing simulation")
		return true, nil
	}
	return true, err
}

// SetSimulationMode persists the flag.
func (s *SettingsService) SetSimulationMode(ctx context.Context, on bool) error {
	return repo.UpsertSetting(ctx, s.DB, domain.SettingSimulationMode, on)
}
