package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeTimeout bounds each send so one stalled viewer cannot wedge a
// fan-out goroutine forever.
const writeTimeout = 5 * time.Second

// wsTransport adapts a gorilla websocket connection to the Transport
// capability interface. gorilla permits only one concurrent writer, so all
// sends serialize through mu.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSTransport wraps an upgraded websocket connection.
func NewWSTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) SendText(data []byte) error {
	return t.write(websocket.TextMessage, data)
}

func (t *wsTransport) SendBinary(data []byte) error {
	return t.write(websocket.BinaryMessage, data)
}

func (t *wsTransport) write(messageType int, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteMessage(messageType, data)
}

func (t *wsTransport) Close() error { return t.conn.Close() }

func (t *wsTransport) RemoteID() string { return t.conn.RemoteAddr().String() }
