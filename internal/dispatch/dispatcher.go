package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/annotation-sync/internal/notify"
	"github.com/example/annotation-sync/internal/observability"
	"github.com/example/annotation-sync/internal/operation"
	"github.com/example/annotation-sync/internal/transport"
	"github.com/example/annotation-sync/internal/types"
)

const defaultTimeout = 1000 * time.Second

// Gate reports the change feed state for a track; edits are only sent while
// it is live.
type Gate interface {
	ListenerState(track types.TrackID) types.ListenerState
}

// GateFunc adapts a function to a Gate.
type GateFunc func(track types.TrackID) types.ListenerState

func (f GateFunc) ListenerState(track types.TrackID) types.ListenerState { return f(track) }

// ConfirmFunc is the continuation asked whether to resend an operation the
// server wants confirmed. It receives the server's prompt.
type ConfirmFunc func(prompt string) bool

// Result describes an accepted operation.
type Result struct {
	Alert     string
	Confirmed bool
	Features  []types.FeatureData
	Body      json.RawMessage
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds a single editor request.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(disp *Dispatcher) {
		if c != nil {
			disp.client = c
		}
	}
}

// Dispatcher sends edit operations to the annotation editor service. It never
// touches the store: accepted edits come back through the change feed.
type Dispatcher struct {
	endpoint string
	gate     Gate
	notifier notify.Notifier
	logger   zerolog.Logger
	client   *http.Client
	timeout  time.Duration
}

// New constructs a Dispatcher posting to endpoint.
func New(endpoint string, gate Gate, notifier notify.Notifier, logger zerolog.Logger, opts ...Option) *Dispatcher {
	if notifier == nil {
		notifier = notify.Nop
	}
	d := &Dispatcher{
		endpoint: endpoint,
		gate:     gate,
		notifier: notifier,
		logger:   logger,
		client:   http.DefaultClient,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute sends op. When the server asks for confirmation, confirm decides
// whether the operation is resent once with the confirm flag set.
func (d *Dispatcher) Execute(ctx context.Context, op operation.EditOperation, confirm ConfirmFunc) (Result, error) {
	ctx, span := tracer.Start(ctx, "dispatch.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("operation", op.Name.String()),
		attribute.String("track", string(op.Track)),
		attribute.Int("features", len(op.Features)),
	)
	logger := observability.LoggerWithTrace(ctx, d.logger).With().
		Str("track", string(op.Track)).
		Str("operation", op.Name.String()).
		Logger()

	if err := op.Name.Validate(); err != nil {
		operationOutcomes.WithLabelValues(op.Name.String(), "invalid").Inc()
		return Result{}, err
	}

	if state := d.gate.ListenerState(op.Track); !state.Live() {
		operationOutcomes.WithLabelValues(op.Name.String(), transport.StaleSession.String()).Inc()
		logger.Warn().Str("listener", state.String()).Msg("edit refused; change feed not live")
		span.SetStatus(codes.Error, "stale session")
		return Result{}, &transport.Error{Kind: transport.StaleSession, Message: fmt.Sprintf("no live change feed for track %s", op.Track)}
	}

	resp, body, err := d.send(ctx, op)
	if err != nil {
		return Result{}, d.fail(span, logger, op, err)
	}
	result := d.accept(op, resp, body)

	if resp.Confirm == "" {
		operationOutcomes.WithLabelValues(op.Name.String(), "ok").Inc()
		return result, nil
	}

	if confirm == nil || !confirm(resp.Confirm) {
		operationOutcomes.WithLabelValues(op.Name.String(), "declined").Inc()
		logger.Info().Str("prompt", resp.Confirm).Msg("confirmation declined")
		return result, &transport.Error{Kind: transport.ConfirmationRequired, Message: resp.Confirm}
	}

	confirmed := op.Confirmed()
	resp, body, err = d.send(ctx, confirmed)
	if err != nil {
		return Result{}, d.fail(span, logger, confirmed, err)
	}
	result = d.accept(confirmed, resp, body)
	result.Confirmed = true

	if resp.Confirm != "" {
		// A confirmed resend asking again is not prompted a second time.
		operationOutcomes.WithLabelValues(op.Name.String(), transport.ConfirmationRequired.String()).Inc()
		logger.Warn().Str("prompt", resp.Confirm).Msg("server requested confirmation twice")
		return result, &transport.Error{Kind: transport.ConfirmationRequired, Message: resp.Confirm}
	}

	operationOutcomes.WithLabelValues(op.Name.String(), "ok").Inc()
	return result, nil
}

// Query runs a read-only operation and returns its decoded payload.
func (d *Dispatcher) Query(ctx context.Context, op operation.EditOperation) (Result, error) {
	if !op.Name.IsQuery() {
		return Result{}, fmt.Errorf("query %s: %w", op.Name, operation.ErrUnknownOperation)
	}
	return d.Execute(ctx, op, nil)
}

func (d *Dispatcher) accept(op operation.EditOperation, resp operation.Response, body []byte) Result {
	if resp.Alert != "" {
		d.notifier.UserAlert(resp.Alert)
	}
	return Result{Alert: resp.Alert, Features: resp.Features, Body: json.RawMessage(body)}
}

func (d *Dispatcher) fail(span trace.Span, logger zerolog.Logger, op operation.EditOperation, err error) error {
	classified := sendFailure(nil, err)
	operationOutcomes.WithLabelValues(op.Name.String(), classified.Kind.String()).Inc()
	span.SetStatus(codes.Error, classified.Kind.String())

	if classified.Kind == transport.ClientCancelled {
		logger.Info().Msg("edit cancelled")
		return classified
	}
	logger.Error().Err(classified).Int("status", classified.Status).Msg("edit failed")
	d.notifier.UserAlert(classified.UserMessage())
	return classified
}

func (d *Dispatcher) send(ctx context.Context, op operation.EditOperation) (operation.Response, []byte, error) {
	payload, err := json.Marshal(op)
	if err != nil {
		return operation.Response{}, nil, fmt.Errorf("encode operation: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return operation.Response{}, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return operation.Response{}, nil, sendFailure(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	roundTrip.WithLabelValues(op.Name.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		return operation.Response{}, nil, sendFailure(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return operation.Response{}, nil, rejection(resp.StatusCode, body)
	}

	decoded, err := operation.DecodeResponse(body)
	if err != nil {
		return operation.Response{}, nil, &transport.Error{Kind: transport.OperationRejected, Status: resp.StatusCode, Message: transport.ErrorMessage(body), Err: err}
	}
	if decoded.Error != "" {
		return operation.Response{}, nil, &transport.Error{Kind: transport.OperationRejected, Status: resp.StatusCode, Message: decoded.Error}
	}
	return decoded, body, nil
}

// sendFailure classifies an edit failure. A dead edit never implies a dead
// session, so kinds that are fatal on the change feed become ConnectionFailed.
func sendFailure(ctx context.Context, err error) *transport.Error {
	classified := transport.Classify(ctx, err)
	if classified.Kind.Fatal() {
		return &transport.Error{Kind: transport.ConnectionFailed, Message: transport.GenericMessage, Err: err}
	}
	return classified
}

// rejection classifies a failed edit by body only: a dead edit never implies a
// dead session, so statuses that are fatal on the change feed are not here.
func rejection(status int, body []byte) *transport.Error {
	if msg := transport.ErrorMessage(body); msg != "" {
		return &transport.Error{Kind: transport.OperationRejected, Status: status, Message: msg}
	}
	return &transport.Error{Kind: transport.ConnectionFailed, Status: status, Message: transport.GenericMessage}
}
