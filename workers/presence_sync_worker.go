// workers/presence_sync_worker.go
package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// OnlineSource lists the users the process considers online.
type OnlineSource interface {
	Online() []string
}

// PresenceSink receives a full replacement of the online set.
type PresenceSink interface {
	Replace(ctx context.Context, userIDs []string) error
}

// PresenceSyncWorker periodically overwrites the Redis presence set with the
// in-memory registry, repairing any SADD/SREM that failed along the way.
type PresenceSyncWorker struct {
	source   OnlineSource
	sink     PresenceSink
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger
}

func NewPresenceSyncWorker(source OnlineSource, sink PresenceSink, interval time.Duration, logger zerolog.Logger) *PresenceSyncWorker {
	return &PresenceSyncWorker{
		source:   source,
		sink:     sink,
		interval: interval,
		timeout:  5 * time.Second,
		log:      logger.With().Str("component", "presence_sync").Logger(),
	}
}

func (w *PresenceSyncWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("starting presence sync worker")
	go w.run(ctx)
}

func (w *PresenceSyncWorker) run(ctx context.Context) {
	// Initial sync clears whatever a previous process left behind
	if err := w.SyncOnce(ctx); err != nil {
		w.log.Warn().Err(err).Msg("initial presence sync failed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.SyncOnce(ctx); err != nil {
				w.log.Error().Err(err).Msg("presence sync failed")
			}
		case <-ctx.Done():
			w.log.Info().Msg("presence sync worker stopped")
			return
		}
	}
}

// SyncOnce replaces the mirrored set with the current online users.
func (w *PresenceSyncWorker) SyncOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	online := w.source.Online()
	if err := w.sink.Replace(ctx, online); err != nil {
		return err
	}
	w.log.Debug().Int("online", len(online)).Msg("presence mirror reconciled")
	return nil
}
