package realtime

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// SetCheckOrigin replaces the origin check used for upgrades.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}

// Stream holds what a websocket needs to know about the attempt it follows.
type Stream struct {
	AttemptID string
	Deadline  *time.Time // nil for untimed attempts
	Submitted bool
	Now       func() time.Time
	Tick      time.Duration
}

// ServeWS upgrades the request and streams attempt events plus a countdown
// until the attempt is submitted or the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, st Stream) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("realtime: upgrade failed", err)
		return
	}
	if st.Now == nil {
		st.Now = time.Now
	}
	if st.Tick <= 0 {
		st.Tick = time.Second
	}

	sub := h.Subscribe(st.AttemptID)
	defer sub.Close()

	gone := make(chan struct{})
	go readPump(conn, gone)
	defer conn.Close()

	if st.Submitted {
		writeJSON(conn, Message{Type: EventSubmitted, AttemptID: st.AttemptID})
		closeConn(conn)
		return
	}

	ticker := time.NewTicker(st.Tick)
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if st.Deadline != nil {
		if !writeJSON(conn, timerUpdate(st)) {
			return
		}
	}
	for {
		select {
		case <-gone:
			return
		case data, ok := <-sub.C():
			if !ok {
				closeConn(conn)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			var m Message
			if json.Unmarshal(data, &m) == nil && m.Type == EventSubmitted {
				closeConn(conn)
				return
			}
		case <-ticker.C:
			if st.Deadline == nil {
				continue
			}
			if !writeJSON(conn, timerUpdate(st)) {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func timerUpdate(st Stream) Message {
	left := st.Deadline.Sub(st.Now()).Seconds()
	return Message{
		Type:      EventTimerUpdate,
		AttemptID: st.AttemptID,
		Payload:   map[string]interface{}{"seconds_left": int(math.Max(0, math.Ceil(left)))},
	}
}

func writeJSON(conn *websocket.Conn, m Message) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(m) == nil
}

func closeConn(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// readPump discards client frames; it only exists to process control frames
// and notice when the peer disconnects.
func readPump(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
