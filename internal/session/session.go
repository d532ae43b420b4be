package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/annotation-sync/internal/changefeed"
	"github.com/example/annotation-sync/internal/dispatch"
	"github.com/example/annotation-sync/internal/notify"
	"github.com/example/annotation-sync/internal/operation"
	"github.com/example/annotation-sync/internal/reconcile"
	"github.com/example/annotation-sync/internal/store"
	"github.com/example/annotation-sync/internal/translate"
	"github.com/example/annotation-sync/internal/transport"
	"github.com/example/annotation-sync/internal/types"
)

var (
	// ErrTrackNotOpen is returned for operations on a track without a handle.
	ErrTrackNotOpen = errors.New("track not open")
	// ErrNoOperation is returned when a command does not apply to the input.
	ErrNoOperation = errors.New("command produced no operation")
	// ErrFeatureNotFound is returned when selecting a feature the store lacks.
	ErrFeatureNotFound = errors.New("feature not found")
)

// Config describes the annotation server and request bounds.
type Config struct {
	BaseURL     string
	PollTimeout time.Duration
	EditTimeout time.Duration
	HTTPClient  *http.Client
}

// Track is everything the client holds for one open annotation track.
type Track struct {
	ID          types.TrackID
	Store       *store.Store
	Alterations *store.Store
	Translator  *translate.Translator
	Selection   *translate.Selection

	listener *changefeed.Listener
}

// State returns the track's change feed state.
func (t *Track) State() types.ListenerState { return t.listener.State() }

// Err returns the failure that stopped the track's change feed, if any.
func (t *Track) Err() error { return t.listener.Err() }

// Done is closed when the track's change feed stops.
func (t *Track) Done() <-chan struct{} { return t.listener.Done() }

// Select replaces the track's selection with the stored features ids, in the
// given order, and returns the resulting records.
func (t *Track) Select(ids ...types.FeatureID) ([]translate.Record, error) {
	records := make([]translate.Record, 0, len(ids))
	for _, id := range ids {
		f, ok := t.Store.Get(id)
		if !ok {
			return nil, fmt.Errorf("select %s: %w", id, ErrFeatureNotFound)
		}
		rec := translate.Record{Feature: f, Track: t.ID, Subfeatures: t.Store.Children(id)}
		if parent, ok := t.Store.Parent(id); ok {
			rec.Parent = &parent
		}
		records = append(records, rec)
	}
	t.Selection.Set(records)
	return records, nil
}

// Session owns the per-track handles of one logged-in client and the
// dispatcher shared between them.
type Session struct {
	cfg        Config
	feedURL    string
	notifier   notify.Notifier
	confirm    translate.Confirmer
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger

	mu     sync.RWMutex
	tracks map[types.TrackID]*Track
}

// New constructs a Session. confirm answers warnings raised while building
// operations from a selection; it may be nil.
func New(cfg Config, notifier notify.Notifier, confirm translate.Confirmer, logger zerolog.Logger) (*Session, error) {
	editURL, err := transport.Endpoint(cfg.BaseURL, transport.EditorPath)
	if err != nil {
		return nil, fmt.Errorf("editor endpoint: %w", err)
	}
	feedURL, err := transport.Endpoint(cfg.BaseURL, transport.ChangeFeedPath)
	if err != nil {
		return nil, fmt.Errorf("change feed endpoint: %w", err)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = transport.NewClient()
	}
	if notifier == nil {
		notifier = notify.Nop
	}

	s := &Session{
		cfg:      cfg,
		feedURL:  feedURL,
		notifier: notifier,
		confirm:  confirm,
		logger:   logger,
		tracks:   make(map[types.TrackID]*Track),
	}
	s.dispatcher = dispatch.New(editURL, s, notifier, logger,
		dispatch.WithTimeout(cfg.EditTimeout),
		dispatch.WithHTTPClient(cfg.HTTPClient),
	)
	return s, nil
}

// Dispatcher returns the dispatcher shared by every track.
func (s *Session) Dispatcher() *dispatch.Dispatcher { return s.dispatcher }

// OpenTrack starts the change feed for track and loads its current features.
// Opening an already open track returns the existing handle.
func (s *Session) OpenTrack(ctx context.Context, id types.TrackID) (*Track, error) {
	s.mu.Lock()
	if existing, ok := s.tracks[id]; ok && !existing.State().Terminal() {
		s.mu.Unlock()
		return existing, nil
	}

	annotations := store.New(id)
	alterations := store.New(id)
	reconciler := reconcile.New(id, annotations, alterations, s.notifier, s.logger)
	t := &Track{
		ID:          id,
		Store:       annotations,
		Alterations: alterations,
		Translator:  translate.New(id, annotations, s.confirm),
		Selection:   &translate.Selection{},
		listener: changefeed.NewListener(s.feedURL, id, reconciler, s.notifier, s.logger,
			changefeed.WithPollTimeout(s.cfg.PollTimeout),
			changefeed.WithHTTPClient(s.cfg.HTTPClient),
		),
	}
	if err := t.listener.Start(ctx); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("open track %s: %w", id, err)
	}
	s.tracks[id] = t
	s.mu.Unlock()

	res, err := s.dispatcher.Query(ctx, operation.Features(id))
	if err != nil {
		_ = s.CloseTrack(id)
		return nil, fmt.Errorf("load features for %s: %w", id, err)
	}
	if err := reconciler.Seed(id, res.Features); err != nil {
		_ = s.CloseTrack(id)
		return nil, fmt.Errorf("seed %s: %w", id, err)
	}
	s.logger.Info().Str("track", string(id)).Int("features", annotations.Len()).Msg("track opened")
	return t, nil
}

// CloseTrack cancels the track's change feed and waits for it to stop.
func (s *Session) CloseTrack(id types.TrackID) error {
	s.mu.Lock()
	t, ok := s.tracks[id]
	delete(s.tracks, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("close %s: %w", id, ErrTrackNotOpen)
	}

	t.listener.Cancel()
	if done := t.listener.Done(); done != nil {
		<-done
	}
	s.logger.Info().Str("track", string(id)).Msg("track closed")
	return nil
}

// Close closes every open track.
func (s *Session) Close() {
	for _, id := range s.Tracks() {
		_ = s.CloseTrack(id)
	}
}

// Track returns the handle of an open track.
func (s *Session) Track(id types.TrackID) (*Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracks[id]
	return t, ok
}

// Tracks lists the open tracks in name order.
func (s *Session) Tracks() []types.TrackID {
	s.mu.RLock()
	out := make([]types.TrackID, 0, len(s.tracks))
	for id := range s.tracks {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot returns every feature of an open track ordered by location.
func (s *Session) Snapshot(id types.TrackID) ([]types.Feature, bool) {
	t, ok := s.Track(id)
	if !ok {
		return nil, false
	}
	return t.Store.Snapshot(), true
}

// ListenerState implements dispatch.Gate. Tracks that are not open report
// Disconnected.
func (s *Session) ListenerState(id types.TrackID) types.ListenerState {
	t, ok := s.Track(id)
	if !ok {
		return types.Disconnected
	}
	return t.State()
}

// Perform builds cmd against the track's translator and sends the result.
func (s *Session) Perform(ctx context.Context, id types.TrackID, cmd translate.Command, in translate.Input, confirm dispatch.ConfirmFunc) (dispatch.Result, error) {
	t, ok := s.Track(id)
	if !ok {
		return dispatch.Result{}, fmt.Errorf("perform %s on %s: %w", cmd, id, ErrTrackNotOpen)
	}
	op, ok := t.Translator.Build(cmd, in)
	if !ok {
		return dispatch.Result{}, fmt.Errorf("perform %s on %s: %w", cmd, id, ErrNoOperation)
	}
	return s.dispatcher.Execute(ctx, op, confirm)
}

// Execute sends a prepared operation.
func (s *Session) Execute(ctx context.Context, op operation.EditOperation, confirm dispatch.ConfirmFunc) (dispatch.Result, error) {
	return s.dispatcher.Execute(ctx, op, confirm)
}
