package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/simaogato/tldpricing-backend/internal/domain"
)

// LoggingPublisher writes price change events to the log when no broker is configured
type LoggingPublisher struct {
	logger zerolog.Logger
}

// NewLoggingPublisher creates a new LoggingPublisher
func NewLoggingPublisher(logger zerolog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

// Publish logs the event
func (p *LoggingPublisher) Publish(_ context.Context, event domain.PriceChangeEvent) error {
	changes := zerolog.Arr()
	for _, c := range event.Changes {
		changes.Dict(zerolog.Dict().
			Str("type", string(c.Type)).
			Int("term", int(c.Term)).
			Str("price", c.Current.String()))
	}

	p.logger.Info().
		Str("event_id", event.ID.String()).
		Str("extension", event.Extension).
		Bool("created", event.Created).
		Bool("promo_active", event.PromoActive).
		Str("group", event.GroupLabel).
		Array("changes", changes).
		Msg("price changed")
	return nil
}
