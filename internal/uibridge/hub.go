package uibridge

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/example/annotation-sync/internal/notify"
	"github.com/example/annotation-sync/internal/types"
)

// SnapshotFunc returns the current features of a track and whether the track
// is open.
type SnapshotFunc func(track types.TrackID) ([]types.Feature, bool)

// Hub tracks UI connections per track and pushes sync core notifications to
// them.
type Hub struct {
	snapshot SnapshotFunc
	logger   zerolog.Logger

	mu     sync.RWMutex
	tracks map[types.TrackID]map[*Connection]struct{}
}

var _ notify.Notifier = (*Hub)(nil)

// NewHub creates an empty hub. snapshot may be nil, in which case clients
// only receive notifications without feature payloads.
func NewHub(snapshot SnapshotFunc, logger zerolog.Logger) *Hub {
	return &Hub{
		snapshot: snapshot,
		logger:   logger,
		tracks:   make(map[types.TrackID]map[*Connection]struct{}),
	}
}

// Register associates the connection with its track.
func (h *Hub) Register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tracks[c.track] == nil {
		h.tracks[c.track] = make(map[*Connection]struct{})
	}
	h.tracks[c.track][c] = struct{}{}
	bridgeConnections.WithLabelValues(string(c.track)).Set(float64(len(h.tracks[c.track])))
}

// Unregister removes the connection.
func (h *Hub) Unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.tracks[c.track]
	if conns == nil {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.tracks, c.track)
	}
	bridgeConnections.WithLabelValues(string(c.track)).Set(float64(len(conns)))
}

// Connections returns the number of clients following track.
func (h *Hub) Connections(track types.TrackID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tracks[track])
}

// Total returns the number of connected clients.
func (h *Hub) Total() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.tracks {
		n += len(conns)
	}
	return n
}

// Broadcast delivers msg to every client of track and reports how many
// accepted it.
func (h *Hub) Broadcast(track types.TrackID, msg Message) int {
	h.mu.RLock()
	recipients := make([]*Connection, 0, len(h.tracks[track]))
	for c := range h.tracks[track] {
		recipients = append(recipients, c)
	}
	h.mu.RUnlock()
	return h.deliver(recipients, msg)
}

// BroadcastAll delivers msg to every connected client.
func (h *Hub) BroadcastAll(msg Message) int {
	h.mu.RLock()
	var recipients []*Connection
	for _, conns := range h.tracks {
		for c := range conns {
			recipients = append(recipients, c)
		}
	}
	h.mu.RUnlock()
	return h.deliver(recipients, msg)
}

func (h *Hub) deliver(recipients []*Connection, msg Message) int {
	if len(recipients) == 0 {
		return 0
	}
	payload, err := msg.encode()
	if err != nil {
		h.logger.Error().Err(err).Str("kind", string(msg.Kind)).Msg("failed to encode bridge message")
		return 0
	}
	sent := 0
	for _, c := range recipients {
		if err := c.Send(payload); err == nil {
			sent++
		}
	}
	bridgeMessages.WithLabelValues(string(msg.Kind)).Add(float64(sent))
	return sent
}

// snapshotMessage builds the feature payload for track, if a source is set.
func (h *Hub) snapshotMessage(kind MessageKind, track types.TrackID) Message {
	msg := Message{Kind: kind, Track: track}
	if h.snapshot == nil {
		return msg
	}
	if features, ok := h.snapshot(track); ok {
		msg.Features = featureData(features)
	}
	return msg
}

func (h *Hub) StoreChanged(track types.TrackID) {
	if h.Connections(track) == 0 {
		return
	}
	h.Broadcast(track, h.snapshotMessage(KindStoreChanged, track))
}

func (h *Hub) FatalError(track types.TrackID, message string) {
	h.Broadcast(track, Message{Kind: KindFatalError, Track: track, Message: message})
}

func (h *Hub) UserAlert(message string) {
	h.BroadcastAll(Message{Kind: KindUserAlert, Message: message})
}

func (h *Hub) TrackHidden(track types.TrackID) {
	h.Broadcast(track, Message{Kind: KindTrackHidden, Track: track})
}
