// Package wsapi implements the websocket command channel: a single
// long-lived connection per client, carrying playlist mutation
// commands in one direction and playlist snapshots in the other. The
// connection is a middleman between the socket and the playlist
// engine, in the same reader-goroutine/writer-goroutine shape
// cartographus's internal/websocket.Client uses, adapted to a
// request/response command protocol instead of a pub/sub hub.
package wsapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/karaoke-party/server/internal/metrics"
	"github.com/karaoke-party/server/internal/playlist"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	snapshotBuffer = 16
)

// authResult is the single-byte binary frame sent in reply to an
// Authenticate command: 1 on success, 0 on failure.
const (
	authResultFailure byte = 0
	authResultSuccess byte = 1
)

// Handler upgrades HTTP requests to the playlist command websocket.
type Handler struct {
	Playlist      *playlist.Playlist
	Index         playlist.Index
	AdminPassword string
	Logger        zerolog.Logger

	upgrader websocket.Upgrader
}

// NewHandler builds a ready-to-use Handler.
func NewHandler(pl *playlist.Playlist, idx playlist.Index, adminPassword string, logger zerolog.Logger) *Handler {
	return &Handler{
		Playlist:      pl,
		Index:         idx,
		AdminPassword: adminPassword,
		Logger:        logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &connection{
		conn:          conn,
		playlist:      h.Playlist,
		index:         h.Index,
		adminPassword: h.AdminPassword,
		logger:        h.Logger,
		snapshots:     make(chan []byte, snapshotBuffer),
		control:       make(chan []byte, 4),
	}
	c.run()
}

// connection is one client's command channel. authenticated is only
// ever read and written from the read loop goroutine, so it needs no
// lock of its own.
type connection struct {
	conn          *websocket.Conn
	playlist      *playlist.Playlist
	index         playlist.Index
	adminPassword string
	logger        zerolog.Logger

	listenerID    uuid.UUID
	authenticated bool

	snapshots chan []byte
	control   chan []byte
}

func (c *connection) run() {
	id, err := c.playlist.Subscribe(c.snapshots)
	if err != nil {
		c.logger.Error().Err(err).Msg("playlist subscribe failed")
		_ = c.conn.Close()
		return
	}
	c.listenerID = id
	metrics.PlaylistListeners.Inc()

	done := make(chan struct{})
	go c.writePump(done)
	c.readPump()

	close(done)
	c.playlist.Unsubscribe(c.listenerID)
	metrics.PlaylistListeners.Dec()
	_ = c.conn.Close()
}

func (c *connection) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.snapshots:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case data := <-c.control:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (c *connection) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		if !c.dispatch(raw) {
			return
		}
	}
}

// dispatch decodes and runs one command, returning false if the
// connection should be terminated. Only a frame that does not decode
// as a JSON command envelope terminates it. A frame whose envelope
// decodes but whose payload fields do not is not terminal: Add replies
// with an error text frame, the other commands drop the frame without
// a reply, and an unknown cmd gets an error text frame; the connection
// stays open in each of these cases.
func (c *connection) dispatch(raw []byte) bool {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}

	switch env.Cmd {
	case "authenticate":
		c.handleAuthenticate(raw)
	case "add":
		c.handleAdd(raw)
	case "play":
		c.handleAdminGated(raw, c.handlePlay)
	case "removeAsAdmin":
		c.handleAdminGated(raw, c.handleRemoveAsAdmin)
	case "removeAsUser":
		c.handleRemoveAsUser(raw)
	case "swap":
		c.handleAdminGated(raw, c.handleSwap)
	case "moveAfter":
		c.handleAdminGated(raw, c.handleMoveAfter)
	case "moveTop":
		c.handleAdminGated(raw, c.handleMoveTop)
	case "reportBug":
		c.handleReportBug(raw)
	case "suggest":
		c.handleSuggest(raw)
	default:
		c.sendText(`{"error":"unknown command"}`)
	}
	return true
}

// handleAdminGated runs fn only if the connection has authenticated as
// admin; otherwise it replies with the "Unauthenticated" text-frame
// fallback spec.md §5 specifies for gated commands over a plain
// connection, rather than closing it.
func (c *connection) handleAdminGated(raw []byte, fn func([]byte)) {
	if !c.authenticated {
		c.sendText("Unauthenticated")
		return
	}
	fn(raw)
}

// sendText queues a text frame for writePump, which writes it the same
// way as a snapshot, so the socket only ever has one writer.
func (c *connection) sendText(s string) {
	c.snapshots <- []byte(s)
}

func (c *connection) handleAuthenticate(raw []byte) {
	var cmd authenticateCmd
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.control <- []byte{authResultFailure}
		return
	}
	if cmd.Password == c.adminPassword && c.adminPassword != "" {
		c.authenticated = true
		c.control <- []byte{authResultSuccess}
		return
	}
	c.authenticated = false
	c.control <- []byte{authResultFailure}
}

func (c *connection) handleAdd(raw []byte) {
	var cmd addCmd
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.sendText(`{"error":"malformed Add command"}`)
		return
	}
	id, err := c.playlist.Add(c.index, cmd.Song, cmd.Singer, cmd.Password)
	if err != nil {
		c.logger.Error().Err(err).Msg("playlist add failed")
		return
	}
	if id != nil {
		metrics.PlaylistMutations.WithLabelValues("add").Inc()
	}
}

func (c *connection) handlePlay(raw []byte) {
	var cmd playCmd
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return
	}
	ok, err := c.playlist.Play(c.index, cmd.ID)
	if err != nil {
		c.logger.Error().Err(err).Msg("playlist play failed")
		return
	}
	if ok {
		metrics.PlaylistMutations.WithLabelValues("play").Inc()
		metrics.SongsPlayed.Inc()
	}
}

func (c *connection) handleRemoveAsAdmin(raw []byte) {
	var cmd removeAsAdminCmd
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return
	}
	if ok, err := c.playlist.Remove(c.index, cmd.ID); err != nil {
		c.logger.Error().Err(err).Msg("playlist remove failed")
	} else if ok {
		metrics.PlaylistMutations.WithLabelValues("remove").Inc()
	}
}

func (c *connection) handleRemoveAsUser(raw []byte) {
	var cmd removeAsUserCmd
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return
	}
	if ok, err := c.playlist.RemoveIfPasswordCorrect(c.index, cmd.ID, cmd.Password); err != nil {
		c.logger.Error().Err(err).Msg("playlist remove failed")
	} else if ok {
		metrics.PlaylistMutations.WithLabelValues("remove").Inc()
	}
}

func (c *connection) handleSwap(raw []byte) {
	var cmd swapCmd
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return
	}
	if ok, err := c.playlist.Swap(c.index, cmd.ID1, cmd.ID2); err != nil {
		c.logger.Error().Err(err).Msg("playlist swap failed")
	} else if ok {
		metrics.PlaylistMutations.WithLabelValues("swap").Inc()
	}
}

func (c *connection) handleMoveAfter(raw []byte) {
	var cmd moveAfterCmd
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return
	}
	if ok, err := c.playlist.MoveAfter(c.index, cmd.ID, cmd.After); err != nil {
		c.logger.Error().Err(err).Msg("playlist moveAfter failed")
	} else if ok {
		metrics.PlaylistMutations.WithLabelValues("moveAfter").Inc()
	}
}

func (c *connection) handleMoveTop(raw []byte) {
	var cmd moveTopCmd
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return
	}
	if ok, err := c.playlist.MoveTop(c.index, cmd.ID); err != nil {
		c.logger.Error().Err(err).Msg("playlist moveTop failed")
	} else if ok {
		metrics.PlaylistMutations.WithLabelValues("moveTop").Inc()
	}
}

func (c *connection) handleReportBug(raw []byte) {
	var cmd reportBugCmd
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return
	}
	if err := c.playlist.ReportBug(c.index, cmd.Song, cmd.Text); err != nil {
		c.logger.Error().Err(err).Msg("report bug failed")
	}
}

func (c *connection) handleSuggest(raw []byte) {
	var cmd suggestCmd
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return
	}
	if err := c.playlist.Suggest(cmd.Name, cmd.Artist, cmd.Title); err != nil {
		c.logger.Error().Err(err).Msg("suggest failed")
	}
}
