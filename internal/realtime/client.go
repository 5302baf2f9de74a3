package realtime

import (
	"encoding/json"
	"time"

	"github.com/gogotex/collabdocs/internal/access"
	"github.com/gogotex/collabdocs/internal/document"
	"github.com/gogotex/collabdocs/pkg/logger"
	"github.com/gorilla/websocket"
)

// Client is one websocket connection watching one document.
type Client struct {
	ID     string
	Caller access.Caller
	Doc    document.ID

	conn *websocket.Conn
	hub  *Hub
	send chan []byte
}

func newClient(id string, caller access.Caller, doc document.ID, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{ID: id, Caller: caller, Doc: doc, conn: conn, hub: hub, send: make(chan []byte, 64)}
}

// readPump only answers application pings; everything else clients need
// goes through the HTTP sync endpoints.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warnw("websocket read failed", "client", c.ID, "error", err)
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Debugf("client %s sent malformed message: %v", c.ID, err)
			continue
		}
		if msg.Type == TypePing {
			c.hub.sendTo(c, TypePong, nil)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
