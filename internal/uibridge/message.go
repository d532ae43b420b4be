package uibridge

import (
	"encoding/json"
	"time"

	"github.com/example/annotation-sync/internal/types"
)

// MessageKind names a message pushed to UI clients.
type MessageKind string

const (
	KindConnected    MessageKind = "connected"
	KindSnapshot     MessageKind = "snapshot"
	KindStoreChanged MessageKind = "store_changed"
	KindFatalError   MessageKind = "fatal_error"
	KindUserAlert    MessageKind = "user_alert"
	KindTrackHidden  MessageKind = "track_hidden"
)

// Message is one JSON text frame sent to a UI client.
type Message struct {
	Kind       MessageKind         `json:"kind"`
	Track      types.TrackID       `json:"track,omitempty"`
	Message    string              `json:"message,omitempty"`
	Connection string              `json:"connection,omitempty"`
	Features   []types.FeatureData `json:"features,omitempty"`
	// SentAt is the unix time in nanoseconds at which the hub encoded the
	// message.
	SentAt int64 `json:"sent_at"`
}

func (m Message) encode() ([]byte, error) {
	if m.SentAt == 0 {
		m.SentAt = time.Now().UnixNano()
	}
	return json.Marshal(m)
}

// featureData flattens store features into wire form, each carrying its
// parent id.
func featureData(features []types.Feature) []types.FeatureData {
	out := make([]types.FeatureData, 0, len(features))
	for _, f := range features {
		out = append(out, types.ToData(f, nil))
	}
	return out
}
