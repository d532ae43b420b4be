package uibridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/example/annotation-sync/internal/types"
)

var errSendBufferFull = errors.New("send buffer full")

type connectionOptions struct {
	heartbeatInterval  time.Duration
	heartbeatTolerance int
	sendBufferSize     int
	writeTimeout       time.Duration
}

// Connection is one UI client following a track.
type Connection struct {
	id      string
	track   types.TrackID
	conn    *websocket.Conn
	logger  zerolog.Logger
	send    chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
	opts    connectionOptions
	onClose func()

	closeOnce sync.Once
}

func newConnection(conn *websocket.Conn, id string, track types.TrackID, logger zerolog.Logger, opts connectionOptions, onClose func()) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		id:      id,
		track:   track,
		conn:    conn,
		logger:  logger,
		send:    make(chan []byte, opts.sendBufferSize),
		ctx:     ctx,
		cancel:  cancel,
		opts:    opts,
		onClose: onClose,
	}
}

// ID returns the connection identifier.
func (c *Connection) ID() string { return c.id }

// Track returns the track the client follows.
func (c *Connection) Track() types.TrackID { return c.track }

// Send enqueues a text frame for the writer goroutine. A client that cannot
// keep up is disconnected.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn().Msg("send buffer full; closing connection")
		c.Close()
		return errSendBufferFull
	}
}

// Run pumps frames until the client goes away or Close is called.
func (c *Connection) Run() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()

	if err := c.readLoop(); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Debug().Err(err).Msg("read loop exited")
	}
	c.Close()
	wg.Wait()
}

// Close stops both pumps. It is safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.onClose != nil {
			c.onClose()
		}
	})
}

// readLoop only services control frames; UI clients do not send data.
func (c *Connection) readLoop() error {
	if c.opts.heartbeatInterval > 0 && c.opts.heartbeatTolerance > 0 {
		allowed := c.opts.heartbeatInterval * time.Duration(c.opts.heartbeatTolerance)
		_ = c.conn.SetReadDeadline(time.Now().Add(allowed))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(allowed))
		})
	}
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return err
		}
	}
}

func (c *Connection) writeLoop() {
	defer c.conn.Close()

	var heartbeat <-chan time.Time
	if c.opts.heartbeatInterval > 0 {
		ticker := time.NewTicker(c.opts.heartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-c.ctx.Done():
			deadline := time.Now().Add(c.opts.writeTimeout)
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), deadline)
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug().Err(err).Msg("write loop error")
				c.Close()
				return
			}
		case <-heartbeat:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.writeTimeout)); err != nil {
				c.logger.Debug().Err(err).Msg("heartbeat ping failed")
				c.Close()
				return
			}
		}
	}
}
