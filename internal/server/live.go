package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	hr "github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"

	"secure-file-share/internal/notify"
)

const (
	outboxSize   = 64
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = pongTimeout * 9 / 10
	maxInbound   = 4096
)

var (
	errSessionClosed = errors.New("live session closed")
	errOutboxFull    = errors.New("live session outbox full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsSession is one websocket connection. Deliver only queues; a single
// writer goroutine owns all writes to the connection.
type wsSession struct {
	conn   *websocket.Conn
	userID int64
	outbox chan notify.Event
	done   chan struct{}
	once   sync.Once
}

func newWSSession(conn *websocket.Conn, userID int64) *wsSession {
	return &wsSession{
		conn:   conn,
		userID: userID,
		outbox: make(chan notify.Event, outboxSize),
		done:   make(chan struct{}),
	}
}

// Deliver queues e. A full outbox means the client is not keeping up and
// counts as a failed delivery.
func (ws *wsSession) Deliver(e notify.Event) error {
	select {
	case <-ws.done:
		return errSessionClosed
	default:
	}
	select {
	case ws.outbox <- e:
		return nil
	default:
		return errOutboxFull
	}
}

func (ws *wsSession) Close() error {
	var err error
	ws.once.Do(func() {
		close(ws.done)
		err = ws.conn.Close()
	})
	return err
}

func (ws *wsSession) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ws.done:
			return
		case e := <-ws.outbox:
			_ = ws.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.conn.WriteJSON(e); err != nil {
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			_ = ws.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = ws.Close()
				return
			}
		}
	}
}

// readLoop discards client frames and returns once the connection fails.
func (ws *wsSession) readLoop() {
	ws.conn.SetReadLimit(maxInbound)
	_ = ws.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	ws.conn.SetPongHandler(func(string) error {
		return ws.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := ws.conn.ReadMessage(); err != nil {
			return
		}
	}
}

type myResponse struct {
	Data string `json:"data"`
	User any    `json:"user"`
}

// handleSocket upgrades an authenticated request to the live channel.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request, _ hr.Params) {
	u, _ := currentUser(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		log.WithError(err).Debug("live channel upgrade failed")
		return
	}

	ws := newWSSession(conn, u.ID)
	go ws.writeLoop()

	s.hub.Subscribe(u.ID, ws)
	_ = ws.Deliver(notify.Event{
		Name: notify.EventMyResponse,
		Data: myResponse{Data: "Connected to server", User: u},
	})
	log.WithFields(log.Fields{"user_id": u.ID, "username": u.Username}).Info("live client connected")

	ws.readLoop()

	s.hub.Unsubscribe(u.ID, ws)
	_ = ws.Close()
	log.WithFields(log.Fields{"user_id": u.ID, "username": u.Username}).Info("live client disconnected")
}
