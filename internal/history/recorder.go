package history

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pereryv/internal/events"
)

// AttachRecorder subscribes the store to the bus so every published event is
// written to the event log. Write failures are logged, never propagated to
// the publisher.
func AttachRecorder(bus *events.Bus, db *DB, logger zerolog.Logger) {
	log := logger.With().Str("component", "history").Logger()
	bus.SubscribeAll(func(e events.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Record(ctx, e); err != nil {
			log.Error().Err(err).Str("kind", string(e.Kind)).Msg("failed to record event")
		}
	})
}
