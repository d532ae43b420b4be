package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/example/annotation-sync/internal/notify"
	"github.com/example/annotation-sync/internal/types"
)

const (
	defaultTopicPrefix  = "annotations:"
	sessionTopic        = "_session"
	defaultDedupeTTL    = 2 * time.Minute
	defaultQueueSize    = 256
	maxPublishElapsed   = 30 * time.Second
	maxSubscribeBackoff = 30 * time.Second
)

// EventKind names the notification carried by an Event.
type EventKind string

const (
	EventStoreChanged EventKind = "store_changed"
	EventFatalError   EventKind = "fatal_error"
	EventUserAlert    EventKind = "user_alert"
	EventTrackHidden  EventKind = "track_hidden"
)

// Event is one notification as published on redis.
type Event struct {
	ID        string        `json:"id"`
	Kind      EventKind     `json:"kind"`
	Track     types.TrackID `json:"track,omitempty"`
	Message   string        `json:"message,omitempty"`
	Origin    string        `json:"origin"`
	EmittedAt int64         `json:"emitted_at"`
}

// Deliver replays the event on n.
func (e Event) Deliver(n notify.Notifier) error {
	switch e.Kind {
	case EventStoreChanged:
		n.StoreChanged(e.Track)
	case EventFatalError:
		n.FatalError(e.Track, e.Message)
	case EventUserAlert:
		n.UserAlert(e.Message)
	case EventTrackHidden:
		n.TrackHidden(e.Track)
	default:
		return fmt.Errorf("deliver event %s: unknown kind %q", e.ID, e.Kind)
	}
	return nil
}

var (
	publishOutcomes = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "broadcast",
		Name:      "published_total",
		Help:      "Notifications published to redis by kind and outcome.",
	}, []string{"kind", "outcome"}))

	relaySkipped = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "broadcast",
		Name:      "relay_skipped_total",
		Help:      "Notifications from other processes that were not replayed locally, by kind.",
	}, []string{"kind"}))

	relayLatency = registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "broadcast",
		Name:      "emit_to_relay_seconds",
		Help:      "Observed latency between emitting a notification and relaying it locally.",
		Buckets:   prometheus.LinearBuckets(0.005, 0.005, 12),
	}, []string{"kind"}))
)

func registerCounterVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if regErr, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return regErr.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return c
}

func registerHistogramVec(h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(h); err != nil {
		if regErr, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return regErr.ExistingCollector.(*prometheus.HistogramVec)
		}
	}
	return h
}

func topic(prefix string, track types.TrackID) string {
	if track == "" {
		return prefix + sessionTopic
	}
	return prefix + string(track)
}

// RedisNotifier publishes sync core notifications to redis so other
// processes watching the same tracks can follow along. Notifications are
// queued and published by Run; a full queue drops the notification.
type RedisNotifier struct {
	client      *redis.Client
	logger      zerolog.Logger
	topicPrefix string
	origin      string
	queue       chan Event
}

var _ notify.Notifier = (*RedisNotifier)(nil)

// NewRedisNotifier constructs a notifier publishing under prefix. origin
// identifies this process so its own events can be told apart.
func NewRedisNotifier(client *redis.Client, prefix, origin string, logger zerolog.Logger) *RedisNotifier {
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return &RedisNotifier{
		client:      client,
		logger:      logger,
		topicPrefix: prefix,
		origin:      origin,
		queue:       make(chan Event, defaultQueueSize),
	}
}

func (n *RedisNotifier) StoreChanged(track types.TrackID) {
	n.enqueue(Event{Kind: EventStoreChanged, Track: track})
}

func (n *RedisNotifier) FatalError(track types.TrackID, message string) {
	n.enqueue(Event{Kind: EventFatalError, Track: track, Message: message})
}

func (n *RedisNotifier) UserAlert(message string) {
	n.enqueue(Event{Kind: EventUserAlert, Message: message})
}

func (n *RedisNotifier) TrackHidden(track types.TrackID) {
	n.enqueue(Event{Kind: EventTrackHidden, Track: track})
}

func (n *RedisNotifier) enqueue(evt Event) {
	evt.ID = ulid.Make().String()
	evt.Origin = n.origin
	evt.EmittedAt = time.Now().UTC().UnixNano()
	select {
	case n.queue <- evt:
	default:
		publishOutcomes.WithLabelValues(string(evt.Kind), "dropped").Inc()
		n.logger.Warn().Str("kind", string(evt.Kind)).Msg("notification queue full; dropping")
	}
}

// Run publishes queued notifications until ctx is done.
func (n *RedisNotifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-n.queue:
			if err := n.Publish(ctx, evt); err != nil && !errors.Is(err, context.Canceled) {
				n.logger.Error().Err(err).Str("kind", string(evt.Kind)).Msg("failed to publish notification")
			}
		}
	}
}

// Publish sends evt to its track topic, retrying with exponential backoff.
func (n *RedisNotifier) Publish(ctx context.Context, evt Event) error {
	if n == nil || n.client == nil {
		return errors.New("nil notifier")
	}
	encoded, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode redis payload: %w", err)
	}

	channel := topic(n.topicPrefix, evt.Track)
	_, err = backoff.Retry(ctx, func() (int64, error) {
		receivers, err := n.client.Publish(ctx, channel, encoded).Result()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, backoff.Permanent(err)
		}
		return receivers, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxPublishElapsed),
		backoff.WithNotify(func(err error, wait time.Duration) {
			n.logger.Warn().Err(err).Str("topic", channel).Dur("backoff", wait).Msg("redis publish failed; retrying")
		}),
	)
	if err != nil {
		publishOutcomes.WithLabelValues(string(evt.Kind), "failed").Inc()
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	publishOutcomes.WithLabelValues(string(evt.Kind), "ok").Inc()
	return nil
}

// Relay subscribes to every track topic and replays store changes from other
// processes on a local Notifier. Each event is delivered at most once.
// Fatal errors, hidden tracks and alerts belong to the session that raised
// them and are never replayed.
type Relay struct {
	client      *redis.Client
	target      notify.Notifier
	logger      zerolog.Logger
	topicPrefix string
	origin      string
	dedupeTTL   time.Duration

	seenMu sync.Mutex
	seen   map[string]time.Time
}

// NewRelay constructs a relay forwarding to target. Events published with the
// same origin are skipped.
func NewRelay(client *redis.Client, prefix, origin string, target notify.Notifier, logger zerolog.Logger) *Relay {
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return &Relay{
		client:      client,
		target:      target,
		logger:      logger,
		topicPrefix: prefix,
		origin:      origin,
		dedupeTTL:   defaultDedupeTTL,
		seen:        make(map[string]time.Time),
	}
}

// Run consumes redis pub/sub messages until ctx is done, resubscribing after
// interruptions.
func (r *Relay) Run(ctx context.Context) error {
	wait := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		pubsub := r.client.PSubscribe(ctx, r.topicPrefix+"*")
		if err := r.consume(ctx, pubsub); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn().Err(err).Dur("backoff", wait).Msg("redis subscription interrupted; retrying")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			wait = min(wait*2, maxSubscribeBackoff)
		}
	}
}

// Subscribed waits until the relay's pattern subscription is registered.
func (r *Relay) Subscribed(ctx context.Context) error {
	for {
		counts, err := r.client.PubSubNumPat(ctx).Result()
		if err == nil && counts > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (r *Relay) consume(ctx context.Context, pubsub *redis.PubSub) error {
	defer pubsub.Close()

	ch := pubsub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("pubsub channel closed")
			}
			if err := r.process(msg); err != nil {
				r.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("failed to process notification")
			}
		}
	}
}

func (r *Relay) process(msg *redis.Message) error {
	var evt Event
	if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if evt.ID == "" || evt.Kind == "" {
		return errors.New("incomplete payload")
	}
	if evt.Origin != "" && evt.Origin == r.origin {
		return nil
	}
	if r.isDuplicate(evt.ID) {
		return nil
	}
	if !relayed(evt.Kind) {
		relaySkipped.WithLabelValues(string(evt.Kind)).Inc()
		r.logger.Debug().Str("kind", string(evt.Kind)).Str("track", string(evt.Track)).Str("origin", evt.Origin).Msg("foreign session notification not relayed")
		return nil
	}

	if evt.EmittedAt > 0 {
		relayLatency.WithLabelValues(string(evt.Kind)).Observe(time.Since(time.Unix(0, evt.EmittedAt)).Seconds())
	}
	return evt.Deliver(r.target)
}

func relayed(kind EventKind) bool {
	return kind == EventStoreChanged
}

func (r *Relay) isDuplicate(id string) bool {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()

	if ts, ok := r.seen[id]; ok {
		if time.Since(ts) < r.dedupeTTL {
			return true
		}
	}

	r.seen[id] = time.Now()
	cutoff := time.Now().Add(-r.dedupeTTL)
	for k, ts := range r.seen {
		if ts.Before(cutoff) {
			delete(r.seen, k)
		}
	}
	return false
}
