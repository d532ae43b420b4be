package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/annotation-sync/internal/dispatch"
	"github.com/example/annotation-sync/internal/notify"
	"github.com/example/annotation-sync/internal/operation"
	"github.com/example/annotation-sync/internal/types"
)

const defaultCacheSize = 256

// Dispatcher is the subset of dispatch.Dispatcher the service needs.
type Dispatcher interface {
	Execute(ctx context.Context, op operation.EditOperation, confirm dispatch.ConfirmFunc) (dispatch.Result, error)
	Query(ctx context.Context, op operation.EditOperation) (dispatch.Result, error)
}

// Service reads and edits feature metadata. Query results are cached until
// the track's store changes.
type Service struct {
	dispatcher Dispatcher
	cache      *queryCache
	logger     zerolog.Logger
}

var _ notify.Notifier = (*Service)(nil)

// New constructs a Service caching up to cacheSize query results.
func New(dispatcher Dispatcher, cacheSize int, logger zerolog.Logger) *Service {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	return &Service{dispatcher: dispatcher, cache: newQueryCache(cacheSize), logger: logger}
}

func (s *Service) Comments(ctx context.Context, track types.TrackID, id types.FeatureID) (json.RawMessage, error) {
	return s.query(ctx, operation.Comments(track, id))
}

func (s *Service) CannedComments(ctx context.Context, track types.TrackID) (json.RawMessage, error) {
	return s.query(ctx, operation.CannedComments(track))
}

func (s *Service) DBXrefs(ctx context.Context, track types.TrackID, id types.FeatureID) (json.RawMessage, error) {
	return s.query(ctx, operation.DBXrefs(track, id))
}

func (s *Service) Attributes(ctx context.Context, track types.TrackID, id types.FeatureID) (json.RawMessage, error) {
	return s.query(ctx, operation.Attributes(track, id))
}

func (s *Service) History(ctx context.Context, track types.TrackID, ids ...types.FeatureID) (json.RawMessage, error) {
	return s.query(ctx, operation.History(track, ids...))
}

// Edit executes a metadata edit. Cached results for the track are dropped once
// the server accepts it.
func (s *Service) Edit(ctx context.Context, op operation.EditOperation) (dispatch.Result, error) {
	if op.Name.IsQuery() {
		return dispatch.Result{}, fmt.Errorf("edit %s: %w", op.Name, operation.ErrUnknownOperation)
	}
	res, err := s.dispatcher.Execute(ctx, op, nil)
	if err != nil {
		return res, err
	}
	s.Invalidate(op.Track)
	return res, nil
}

// Invalidate drops every cached result for track.
func (s *Service) Invalidate(track types.TrackID) {
	if n := s.cache.DropTrack(track); n > 0 {
		cacheEvictions.WithLabelValues(string(track)).Add(float64(n))
		s.logger.Debug().Str("track", string(track)).Int("entries", n).Msg("metadata cache invalidated")
	}
}

func (s *Service) query(ctx context.Context, op operation.EditOperation) (json.RawMessage, error) {
	key := cacheKey{Track: op.Track, Feature: joinIDs(op.IDs()), Operation: op.Name}
	if body, ok := s.cache.Get(key); ok {
		cacheRequests.WithLabelValues(op.Name.String(), "hit").Inc()
		return body, nil
	}
	cacheRequests.WithLabelValues(op.Name.String(), "miss").Inc()

	res, err := s.dispatcher.Query(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", op.Name, err)
	}
	s.cache.Put(key, res.Body)
	return res.Body, nil
}

func joinIDs(ids []types.FeatureID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}

func (s *Service) StoreChanged(track types.TrackID) { s.Invalidate(track) }
func (s *Service) TrackHidden(track types.TrackID)  { s.Invalidate(track) }
func (s *Service) FatalError(types.TrackID, string) {}
func (s *Service) UserAlert(string)                 {}
