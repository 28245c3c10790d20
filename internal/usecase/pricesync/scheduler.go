package pricesync

import (
	"context"
	"errors"
	"time"

	"github.com/simaogato/tldpricing-backend/internal/domain"
)

// RunScheduled syncs the already-stored extensions every interval until ctx is done.
// A failed run is logged and the next tick tries again. report, when set, receives every outcome.
func (s *SyncService) RunScheduled(ctx context.Context, interval time.Duration, policy domain.PricingPolicy, report func(*BatchResult, error)) error {
	if interval <= 0 {
		return errors.New("sync interval must be positive")
	}

	ticker := s.Clock.NewTicker(interval)
	defer ticker.Stop()

	s.Logger.Info().Dur("interval", interval).Msg("scheduled sync started")

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info().Msg("scheduled sync stopped")
			return nil
		case <-ticker.Chan():
			result, err := s.SyncExisting(ctx, policy)
			if err != nil {
				s.Logger.Error().Err(err).Msg("scheduled sync failed")
			}
			if report != nil {
				report(result, err)
			}
		}
	}
}
