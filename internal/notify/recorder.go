package notify

import (
	"sync"

	"github.com/example/annotation-sync/internal/types"
)

// Recorder keeps every notification it receives. It is used by the CLI to
// report what a session surfaced and by tests across packages.
type Recorder struct {
	mu      sync.Mutex
	Changed []types.TrackID
	Fatal   []string
	Alerts  []string
	Hidden  []types.TrackID
}

func (r *Recorder) StoreChanged(track types.TrackID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Changed = append(r.Changed, track)
}

func (r *Recorder) FatalError(track types.TrackID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Fatal = append(r.Fatal, string(track)+": "+message)
}

func (r *Recorder) UserAlert(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Alerts = append(r.Alerts, message)
}

func (r *Recorder) TrackHidden(track types.TrackID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Hidden = append(r.Hidden, track)
}

// Counts returns the number of changed, fatal, alert and hidden notifications.
func (r *Recorder) Counts() (changed, fatal, alerts, hidden int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Changed), len(r.Fatal), len(r.Alerts), len(r.Hidden)
}

// AlertsSnapshot returns a copy of the recorded alerts.
func (r *Recorder) AlertsSnapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Alerts...)
}

// FatalSnapshot returns a copy of the recorded fatal errors.
func (r *Recorder) FatalSnapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Fatal...)
}
