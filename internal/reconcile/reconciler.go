package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/annotation-sync/internal/notify"
	"github.com/example/annotation-sync/internal/types"
)

// ErrTrackMismatch is returned when a batch is applied to the wrong track.
var ErrTrackMismatch = errors.New("change events addressed to another track")

// FeatureSink receives reconciled feature trees. *store.Store satisfies it
// for both annotations and sequence alterations.
type FeatureSink interface {
	InsertTree(nodes []types.Feature) bool
	ReplaceTree(nodes []types.Feature)
	Delete(id types.FeatureID) bool
}

// Reconciler applies change feed batches for a single track. Its caller, the
// track's listener loop, is the only writer, so it holds no lock of its own.
type Reconciler struct {
	track       types.TrackID
	annotations FeatureSink
	alterations FeatureSink
	notifier    notify.Notifier
	logger      zerolog.Logger
}

// New constructs a Reconciler. alterations may be nil, in which case
// sequence alteration events are logged and dropped.
func New(track types.TrackID, annotations, alterations FeatureSink, notifier notify.Notifier, logger zerolog.Logger) *Reconciler {
	if notifier == nil {
		notifier = notify.Nop
	}
	return &Reconciler{
		track:       track,
		annotations: annotations,
		alterations: alterations,
		notifier:    notifier,
		logger:      logger.With().Str("track", string(track)).Logger(),
	}
}

// Apply applies events in delivery order and signals a store change once for
// the whole batch.
func (r *Reconciler) Apply(_ context.Context, track types.TrackID, events []types.ChangeEvent) error {
	if track != r.track {
		return fmt.Errorf("apply batch for %s on %s: %w", track, r.track, ErrTrackMismatch)
	}
	if len(events) == 0 {
		return nil
	}

	start := time.Now()
	for _, evt := range events {
		r.applyEvent(evt)
	}
	applyLatency.WithLabelValues(string(r.track)).Observe(time.Since(start).Seconds())

	r.notifier.StoreChanged(r.track)
	return nil
}

// Seed loads the initial feature set for the track with first-wins inserts.
func (r *Reconciler) Seed(track types.TrackID, features []types.FeatureData) error {
	if track != r.track {
		return fmt.Errorf("seed %s on %s: %w", track, r.track, ErrTrackMismatch)
	}
	inserted := 0
	for _, data := range features {
		nodes, ok := r.flatten(data)
		if !ok {
			continue
		}
		if r.annotations.InsertTree(nodes) {
			inserted++
		}
	}
	r.logger.Info().Int("features", inserted).Msg("initial features loaded")
	r.notifier.StoreChanged(r.track)
	return nil
}

func (r *Reconciler) applyEvent(evt types.ChangeEvent) {
	sink := r.annotations
	if evt.SequenceAlteration {
		if r.alterations == nil {
			r.logger.Warn().Str("operation", evt.Operation.String()).Msg("sequence alteration event without alteration sink; dropped")
			return
		}
		sink = r.alterations
	}

	switch evt.Operation {
	case types.EventAdd:
		for _, data := range evt.Features {
			nodes, ok := r.flatten(data)
			if !ok {
				continue
			}
			if !sink.InsertTree(nodes) {
				r.logger.Debug().Str("feature", data.UniqueName).Msg("duplicate add ignored")
			}
		}
	case types.EventDelete:
		for _, data := range evt.Features {
			if data.UniqueName == "" {
				continue
			}
			if !sink.Delete(types.FeatureID(data.UniqueName)) {
				r.logger.Debug().Str("feature", data.UniqueName).Msg("delete of absent feature ignored")
			}
		}
	case types.EventUpdate:
		for _, data := range evt.Features {
			nodes, ok := r.flatten(data)
			if !ok {
				continue
			}
			sink.ReplaceTree(nodes)
		}
	case types.EventUnknown:
		r.logger.Debug().Str("operation", evt.RawOperation).Msg("unknown change event ignored")
		return
	}

	eventsApplied.WithLabelValues(string(r.track), evt.Operation.String()).Inc()
}

func (r *Reconciler) flatten(data types.FeatureData) ([]types.Feature, bool) {
	nodes, err := types.Flatten(data)
	if err != nil {
		featuresSkipped.WithLabelValues(string(r.track)).Inc()
		r.logger.Warn().Err(err).Str("feature", data.UniqueName).Msg("invalid feature payload skipped")
		return nil, false
	}
	return nodes, true
}
