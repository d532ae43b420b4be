package translate

import (
	"sync"

	"github.com/example/annotation-sync/internal/types"
)

// Selectable holds the records currently selected in the UI.
type Selectable interface {
	Set(records []Record)
	Records() []Record
	Clear()
}

// Selection is a Selectable safe for concurrent use.
type Selection struct {
	mu      sync.RWMutex
	records []Record
}

var _ Selectable = (*Selection)(nil)

func (s *Selection) Set(records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]Record(nil), records...)
}

func (s *Selection) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.records...)
}

func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

// Input splits the selection into annotations on track and evidence from
// every other track.
func (s *Selection) Input(track types.TrackID, coord *int64) Input {
	in := Input{Coordinate: coord}
	for _, r := range s.Records() {
		if r.Track == track {
			in.Annotations = append(in.Annotations, r)
		} else {
			in.Evidence = append(in.Evidence, r)
		}
	}
	return in
}
