package notify

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/example/annotation-sync/internal/types"
)

// Notifier is the outbound boundary from the sync core to UI collaborators.
type Notifier interface {
	// StoreChanged fires once per applied change feed batch.
	StoreChanged(track types.TrackID)
	// FatalError fires when the session is unrecoverable; consumers must
	// force a full reload.
	FatalError(track types.TrackID, message string)
	// UserAlert surfaces a non-fatal message.
	UserAlert(message string)
	// TrackHidden asks the view to hide a track whose session was revoked.
	TrackHidden(track types.TrackID)
}

// Funcs adapts plain functions to a Notifier. Nil fields are skipped.
type Funcs struct {
	OnStoreChanged func(track types.TrackID)
	OnFatalError   func(track types.TrackID, message string)
	OnUserAlert    func(message string)
	OnTrackHidden  func(track types.TrackID)
}

func (f Funcs) StoreChanged(track types.TrackID) {
	if f.OnStoreChanged != nil {
		f.OnStoreChanged(track)
	}
}

func (f Funcs) FatalError(track types.TrackID, message string) {
	if f.OnFatalError != nil {
		f.OnFatalError(track, message)
	}
}

func (f Funcs) UserAlert(message string) {
	if f.OnUserAlert != nil {
		f.OnUserAlert(message)
	}
}

func (f Funcs) TrackHidden(track types.TrackID) {
	if f.OnTrackHidden != nil {
		f.OnTrackHidden(track)
	}
}

// Nop discards every notification.
var Nop Notifier = Funcs{}

// Log writes notifications to a logger.
type Log struct {
	Logger zerolog.Logger
}

func (l Log) StoreChanged(track types.TrackID) {
	l.Logger.Debug().Str("track", string(track)).Msg("store changed")
}

func (l Log) FatalError(track types.TrackID, message string) {
	l.Logger.Error().Str("track", string(track)).Str("message", message).Msg("fatal session error")
}

func (l Log) UserAlert(message string) {
	l.Logger.Warn().Str("message", message).Msg("user alert")
}

func (l Log) TrackHidden(track types.TrackID) {
	l.Logger.Warn().Str("track", string(track)).Msg("track hidden")
}

// Fanout delivers every notification to all subscribed notifiers in
// subscription order.
type Fanout struct {
	mu     sync.RWMutex
	nextID int
	order  []int
	subs   map[int]Notifier
}

// NewFanout constructs a Fanout with optional initial subscribers.
func NewFanout(initial ...Notifier) *Fanout {
	f := &Fanout{subs: make(map[int]Notifier)}
	for _, n := range initial {
		f.Subscribe(n)
	}
	return f
}

// Subscribe registers n and returns a function that removes it again.
func (f *Fanout) Subscribe(n Notifier) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.subs[id] = n
	f.order = append(f.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
			for i, v := range f.order {
				if v == id {
					f.order = append(f.order[:i], f.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (f *Fanout) StoreChanged(track types.TrackID) {
	for _, n := range f.snapshot() {
		n.StoreChanged(track)
	}
}

func (f *Fanout) FatalError(track types.TrackID, message string) {
	for _, n := range f.snapshot() {
		n.FatalError(track, message)
	}
}

func (f *Fanout) UserAlert(message string) {
	for _, n := range f.snapshot() {
		n.UserAlert(message)
	}
}

func (f *Fanout) TrackHidden(track types.TrackID) {
	for _, n := range f.snapshot() {
		n.TrackHidden(track)
	}
}

// snapshot copies the subscriber list so notifiers run without the lock held.
func (f *Fanout) snapshot() []Notifier {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Notifier, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.subs[id])
	}
	return out
}
