package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/config"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

type SignalWSController struct {
	Rooms  *orch.Manager
	RoomID domain.RoomID

	readLimit    int64
	pingPeriod   time.Duration
	writeTimeout time.Duration
	sendBuffer   int
}

func NewSignalWSController(rooms *orch.Manager, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		Rooms:        rooms,
		RoomID:       domain.RoomID(cfg.Room),
		readLimit:    cfg.ReadLimit,
		pingPeriod:   cfg.PingPeriod,
		writeTimeout: cfg.WriteTimeout,
		sendBuffer:   cfg.SendBuffer,
	}
}

// WsSignalConn is the per-connection send queue. Close lets the writer flush what is queued
// before the close frame goes out.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu        sync.RWMutex
	closed    bool
	closeCode int
	closeText string
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		conn:      ws,
		send:      make(chan core.Frame, buffer),
		closeCode: websocket.CloseNormalClosure,
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// CloseWith closes the connection with a specific close code.
func (c *WsSignalConn) CloseWith(code int, text string) {
	c.mu.Lock()
	if !c.closed {
		c.closeCode = code
		c.closeText = text
	}
	c.mu.Unlock()
	c.Close()
}

func (c *WsSignalConn) closeFrame() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return websocket.FormatCloseMessage(c.closeCode, c.closeText)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and binds the connection to the configured room.
// nick is the requested nickname, client the stable browser id; both may be empty.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, nick, client string) {
	log.Info().Str("module", "signal").Str("client", client).Msg("new WS connection")

	// Response headers carry the session cookie set before the upgrade.
	ws, err := upgrader.Upgrade(c.Writer, c.Request, c.Writer.Header())
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, ctl.sendBuffer)
	room := ctl.Rooms.GetOrCreate(ctl.RoomID)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ctl.writePump(conn)
		cancel()
	}()

	sid, err := room.Join(ctx, orch.JoinRequest{Conn: conn, Nick: nick, Client: client})
	if err != nil {
		if errors.Is(err, domain.ErrNameBanned) {
			_ = app.Send(conn, domain.System{Text: "You are banned from this room."})
			conn.CloseWith(websocket.ClosePolicyViolation, "banned")
			return
		}
		log.Error().Err(err).Str("module", "signal").Msg("join")
		conn.CloseWith(websocket.CloseGoingAway, "room unavailable")
		return
	}
	go ctl.readPump(ctx, room, sid, conn)
}
