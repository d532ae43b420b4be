package changefeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/example/annotation-sync/internal/notify"
	"github.com/example/annotation-sync/internal/transport"
	"github.com/example/annotation-sync/internal/types"
)

const defaultPollTimeout = 5 * time.Minute

// ErrAlreadyRunning is returned by Start while a previous loop is still live.
var ErrAlreadyRunning = errors.New("change feed listener already running")

// Consumer applies change feed batches for a track.
type Consumer interface {
	Apply(ctx context.Context, track types.TrackID, events []types.ChangeEvent) error
}

// Option configures a Listener.
type Option func(*Listener)

// WithPollTimeout bounds a single long-poll request.
func WithPollTimeout(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.pollTimeout = d
		}
	}
}

// WithHTTPClient overrides the HTTP client used for polling.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Listener) {
		if c != nil {
			l.client = c
		}
	}
}

// Listener keeps exactly one long-poll request outstanding for a track until
// it is cancelled or reaches a terminal failure.
type Listener struct {
	endpoint    string
	track       types.TrackID
	consumer    Consumer
	notifier    notify.Notifier
	logger      zerolog.Logger
	client      *http.Client
	pollTimeout time.Duration

	state atomic.Int32
	nonce atomic.Uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

// NewListener constructs a listener polling endpoint for track.
func NewListener(endpoint string, track types.TrackID, consumer Consumer, notifier notify.Notifier, logger zerolog.Logger, opts ...Option) *Listener {
	if notifier == nil {
		notifier = notify.Nop
	}
	l := &Listener{
		endpoint:    endpoint,
		track:       track,
		consumer:    consumer,
		notifier:    notifier,
		logger:      logger.With().Str("track", string(track)).Logger(),
		client:      http.DefaultClient,
		pollTimeout: defaultPollTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.setState(types.Disconnected)
	return l
}

// Track returns the track this listener serves.
func (l *Listener) Track() types.TrackID { return l.track }

// State returns the current listener state.
func (l *Listener) State() types.ListenerState {
	return types.ListenerState(l.state.Load())
}

// Err returns the failure that stopped the listener, if any.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Done is closed when the current loop exits. It is nil before Start.
func (l *Listener) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Start moves the listener to Connecting and launches the poll loop.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done != nil {
		select {
		case <-l.done:
		default:
			return ErrAlreadyRunning
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.lastErr = nil
	l.setState(types.Connecting)

	go l.run(loopCtx, l.done)
	l.logger.Info().Msg("change feed listener started")
	return nil
}

// Cancel stops the listener. It is safe to call more than once and from any
// goroutine.
func (l *Listener) Cancel() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (l *Listener) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		events, err := l.poll(ctx)
		if err != nil {
			if !l.handleFailure(transport.Classify(ctx, err)) {
				return
			}
			continue
		}

		l.setState(types.Connected)
		if len(events) == 0 {
			pollOutcomes.WithLabelValues(string(l.track), "heartbeat").Inc()
			continue
		}

		pollOutcomes.WithLabelValues(string(l.track), "events").Inc()
		batchEvents.WithLabelValues(string(l.track)).Observe(float64(len(events)))
		if err := l.consumer.Apply(ctx, l.track, events); err != nil {
			l.logger.Error().Err(err).Int("events", len(events)).Msg("failed to apply change events")
		}
	}
}

func (l *Listener) poll(ctx context.Context) ([]types.ChangeEvent, error) {
	ctx, span := tracer.Start(ctx, "changefeed.poll")
	defer span.End()
	span.SetAttributes(attribute.String("track", string(l.track)))

	reqCtx, cancel := context.WithTimeout(ctx, l.pollTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, l.pollURL(), nil)
	if err != nil {
		return nil, &transport.Error{Kind: transport.ConnectionFailed, Message: transport.GenericMessage, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := l.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return nil, transport.FromResponse(resp.StatusCode, body)
	}

	events, err := types.DecodeChangeEvents(body)
	if err != nil {
		span.RecordError(err)
		return nil, &transport.Error{Kind: transport.ConnectionFailed, Status: resp.StatusCode, Message: transport.GenericMessage, Err: err}
	}
	return events, nil
}

// pollURL scopes the request to the track and adds a nonce so no cache
// between client and server can replay an earlier response.
func (l *Listener) pollURL() string {
	q := url.Values{}
	q.Set("track", string(l.track))
	q.Set("_", strconv.FormatInt(time.Now().UnixNano(), 36)+"-"+strconv.FormatUint(l.nonce.Add(1), 36))
	return l.endpoint + "?" + q.Encode()
}

// handleFailure applies the recovery action for a classified failure and
// reports whether the loop should issue another request.
func (l *Listener) handleFailure(err *transport.Error) bool {
	pollOutcomes.WithLabelValues(string(l.track), err.Kind.String()).Inc()

	switch {
	case err.Kind.Retryable():
		l.logger.Debug().Err(err).Msg("change feed poll interrupted; reconnecting")
		l.setState(types.Connecting)
		return true

	case err.Kind == transport.ClientCancelled:
		l.logger.Info().Msg("change feed listener cancelled")
		l.stop(types.Disconnected, nil)
		return false

	case err.Kind.Fatal():
		l.stop(types.FatallyFailed, err)
		if err.Kind == transport.SessionInvalid {
			l.logger.Warn().Int("status", err.Status).Msg("session rejected; hiding track")
			l.notifier.TrackHidden(l.track)
			l.notifier.StoreChanged(l.track)
			l.notifier.FatalError(l.track, "Logged out")
			return false
		}
		l.logger.Error().Err(err).Msg("server unavailable; session lost")
		l.notifier.FatalError(l.track, err.UserMessage())
		return false

	case err.Kind == transport.OperationRejected:
		l.logger.Error().Int("status", err.Status).Str("message", err.Message).Msg("change feed failed; listener unhealthy")
		l.stop(types.Disconnected, err)
		l.notifier.UserAlert(err.UserMessage())
		return false

	default:
		l.logger.Error().Err(err).Msg("change feed connection error")
		l.stop(types.Disconnected, err)
		l.notifier.UserAlert(transport.GenericMessage)
		return false
	}
}

func (l *Listener) stop(state types.ListenerState, err error) {
	l.mu.Lock()
	l.lastErr = err
	l.mu.Unlock()
	l.setState(state)
}

func (l *Listener) setState(s types.ListenerState) {
	l.state.Store(int32(s))
	listenerState.WithLabelValues(string(l.track)).Set(float64(s))
}

func (l *Listener) String() string {
	return fmt.Sprintf("listener(%s, %s)", l.track, l.State())
}
