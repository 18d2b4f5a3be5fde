package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/local"
	"github.com/dmitrijs2005/discshelf/internal/models"
)

// Reconfigure swaps the active backend. The previous adapter is closed and
// live updates stop. A zero Backend disables sync; a configured one leaves
// the disabled state.
func (s *Service) Reconfigure(ctx context.Context, b Backend) error {
	s.stopLive(ctx)
	if err := s.closeAdapter(s.adapter()); err != nil {
		s.log.Warn(ctx, "failed to close previous backend", "error", err)
	}
	s.install(b)

	name := "none"
	if b.Adapter == nil {
		s.state.Disable("sync backend is not configured")
	} else {
		name = b.Adapter.Name()
		s.state.Enable()
		s.state.Reset("switched to " + name)
	}
	if err := s.local.SetSetting(ctx, local.KeyBackend, name); err != nil {
		s.log.Warn(ctx, "failed to store backend choice", "error", err)
	}
	if err := s.local.SetLastRemoteModified(ctx, time.Time{}); err != nil {
		s.log.Warn(ctx, "failed to clear remote marker", "error", err)
	}
	s.log.Info(ctx, "backend switched", "backend", name)
	return nil
}

// FormatView returns the persisted format filter, cd by default.
func (s *Service) FormatView(ctx context.Context) (models.Format, error) {
	v, err := s.local.Setting(ctx, local.KeyFormatView, string(models.FormatCD))
	if err != nil {
		return models.FormatCD, err
	}
	return models.Format(v), nil
}

// SetFormatView persists the format filter.
func (s *Service) SetFormatView(ctx context.Context, f models.Format) error {
	if f != models.FormatCD && f != models.FormatVinyl {
		return fmt.Errorf("%w: unknown format %q", common.ErrValidation, f)
	}
	return s.local.SetSetting(ctx, local.KeyFormatView, string(f))
}
