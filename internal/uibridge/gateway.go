package uibridge

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/example/annotation-sync/internal/types"
)

// GatewayConfig controls the runtime behaviour of the UI bridge.
type GatewayConfig struct {
	HeartbeatInterval  time.Duration
	HeartbeatTolerance int
	SendBuffer         int
	WriteTimeout       time.Duration
	CheckOrigin        func(r *http.Request) bool
}

// Gateway upgrades UI requests into WebSocket connections registered with a
// Hub.
type Gateway struct {
	hub      *Hub
	logger   zerolog.Logger
	cfg      GatewayConfig
	upgrader websocket.Upgrader
}

// NewGateway creates a Gateway with sane defaults.
func NewGateway(hub *Hub, logger zerolog.Logger, cfg GatewayConfig) *Gateway {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.HeartbeatTolerance == 0 {
		cfg.HeartbeatTolerance = 2
	}
	if cfg.SendBuffer == 0 {
		cfg.SendBuffer = 64
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Gateway{
		hub:    hub,
		logger: logger,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Router exposes the bridge routes.
func (g *Gateway) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/tracks/{track}/events", g.serveTrack).Methods(http.MethodGet)
	r.HandleFunc("/healthz", g.serveHealth).Methods(http.MethodGet)
	return r
}

func (g *Gateway) serveTrack(w http.ResponseWriter, r *http.Request) {
	track := types.TrackID(mux.Vars(r)["track"])
	if track == "" {
		http.Error(w, "missing track", http.StatusBadRequest)
		return
	}

	start := time.Now()
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error().Err(err).Str("track", string(track)).Msg("websocket upgrade failed")
		return
	}
	bridgeUpgradeLatency.WithLabelValues(string(track)).Observe(time.Since(start).Seconds())

	id := uuid.NewString()
	childLogger := g.logger.With().Str("track", string(track)).Str("connection", id).Logger()
	var connection *Connection
	connection = newConnection(conn, id, track, childLogger, connectionOptions{
		heartbeatInterval:  g.cfg.HeartbeatInterval,
		heartbeatTolerance: g.cfg.HeartbeatTolerance,
		sendBufferSize:     g.cfg.SendBuffer,
		writeTimeout:       g.cfg.WriteTimeout,
	}, func() {
		g.hub.Unregister(connection)
	})

	g.hub.Register(connection)
	childLogger.Info().Msg("ui client connected")

	g.hub.deliver([]*Connection{connection}, Message{Kind: KindConnected, Track: track, Connection: id})
	if g.hub.snapshot != nil {
		g.hub.deliver([]*Connection{connection}, g.hub.snapshotMessage(KindSnapshot, track))
	}

	go connection.Run()
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

func (g *Gateway) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok", Connections: g.hub.Total()})
}
