package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/config"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/rooms"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/signaling"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/store"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/transport"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/turn"
)

// Handlers bundles the API surface of the call core.
type Handlers struct {
	config     *config.Config
	registry   *rooms.Registry
	relay      *signaling.Relay
	hub        *transport.Hub
	turnServer *turn.Server
	store      *store.Store
	logger     *slog.Logger
	wsUpgrader websocket.Upgrader
}

func New(
	cfg *config.Config,
	registry *rooms.Registry,
	relay *signaling.Relay,
	hub *transport.Hub,
	turnServer *turn.Server,
	st *store.Store,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		config:     cfg,
		registry:   registry,
		relay:      relay,
		hub:        hub,
		turnServer: turnServer,
		store:      st,
		logger:     logger,
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}
