package realtime

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ihor-metko/courtflow/internal/bus"
	"github.com/ihor-metko/courtflow/internal/observability"
)

const (
	DefaultHeartbeat = 30 * time.Second

	writeTimeout = 10 * time.Second
	// Outbound buffer per connection. Delivery is best-effort: a client
	// that cannot drain its buffer loses events and is expected to
	// refresh on reconnect.
	sendBuffer = 64
)

// Handler upgrades authorized connections to websockets and pumps bus
// events to them. Rooms are joined once, at connect time, from the
// authorizer-derived identity.
type Handler struct {
	auth      *Authorizer
	bus       *bus.Bus
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

func NewHandler(auth *Authorizer, b *bus.Bus, heartbeat time.Duration) *Handler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Handler{
		auth:      auth,
		bus:       b,
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeHTTP handles GET /ws. The bearer credential arrives in the
// Authorization header or a token query parameter; an optional club_id
// narrows the connection to one club's operational view. Authorization
// failure refuses the connection before the upgrade, never a degraded
// session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	token := bearerToken(r)
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	identity, err := h.auth.Authorize(r.Context(), token)
	if err != nil {
		logger.Warn().Err(err).Msg("Realtime connection refused")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	rooms := identity.Rooms()
	if clubID := r.URL.Query().Get("club_id"); clubID != "" {
		if !identity.CanObserveClub(clubID) {
			logger.Warn().
				Str("user_id", identity.UserID).
				Str("club_id", clubID).
				Msg("Realtime connection refused: club not observable")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if !identity.IsRootAdmin {
			rooms = []string{bus.ClubRoom(clubID)}
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Websocket upgrade failed")
		return
	}

	c := &connection{
		conn:      conn,
		send:      make(chan bus.Event, sendBuffer),
		done:      make(chan struct{}),
		heartbeat: h.heartbeat,
	}

	// The ack must be the first frame the client sees after authorization.
	c.enqueue(bus.Event{
		Type: bus.EventConnectionReady,
		At:   time.Now().UTC(),
		Payload: map[string]any{
			"userId": identity.UserID,
			"rooms":  rooms,
		},
	})

	unsubscribe := h.bus.Subscribe(rooms, c.enqueue)

	observability.RealtimeConnections.Inc()
	logger.Info().
		Str("user_id", identity.UserID).
		Strs("rooms", rooms).
		Msg("Realtime connection established")

	go c.writeLoop()
	go func() {
		c.readLoop()
		unsubscribe()
		observability.RealtimeConnections.Dec()
		logger.Info().Str("user_id", identity.UserID).Msg("Realtime connection closed")
	}()
}

// bearerToken prefers the Authorization header; any non-Bearer scheme
// is ignored so the token query parameter still applies.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

type connection struct {
	conn      *websocket.Conn
	send      chan bus.Event
	done      chan struct{}
	heartbeat time.Duration
}

// enqueue hands an event to the write loop without blocking the
// publisher. A full buffer drops the event (at-most-once delivery).
func (c *connection) enqueue(ev bus.Event) {
	select {
	case c.send <- ev:
	case <-c.done:
	default:
		log.Warn().Str("event_type", ev.Type).Msg("Realtime send buffer full, dropping event")
	}
}

// writeLoop serializes events onto the socket and emits heartbeat pings
// independent of business traffic so idle connections are not reaped by
// intermediaries.
func (c *connection) writeLoop() {
	ticker := time.NewTicker(c.heartbeat)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop exists to notice the client hanging up; inbound frames carry
// no meaning on this channel.
func (c *connection) readLoop() {
	defer close(c.done)
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(3 * c.heartbeat))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(3 * c.heartbeat))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(3 * c.heartbeat))
	}
}
