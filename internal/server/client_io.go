package server

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/boardsync/collab/internal/errors"
)

// closeSend signals the session to shut down exactly once and cancels its
// in-flight work. Safe to call from any goroutine. The send channel itself
// is never closed; all senders check done first.
func (c *Client) closeSend() {
	c.sendOnce.Do(func() {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
	})
}

// closeWith records why the server is closing the session, then closes it.
func (c *Client) closeWith(reason *apperrors.CodedError) {
	c.mu.Lock()
	if c.closeReason == nil {
		c.closeReason = reason
	}
	c.mu.Unlock()
	c.closeSend()
}

// closeFrame is the close message sent when the session shuts down. A forced
// close carries the error code as its reason text.
func (c *Client) closeFrame() []byte {
	c.mu.Lock()
	reason := c.closeReason
	c.mu.Unlock()

	switch {
	case reason == nil:
		return websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	case reason.Code == apperrors.CodeServerInvalidMessage, reason.Code == apperrors.CodeAuthUnauthorized:
		return websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason.Code)
	default:
		return websocket.FormatCloseMessage(websocket.CloseTryAgainLater, reason.Code)
	}
}

// writePump sends queued messages to the WebSocket and pings periodically.
// It owns all writes to conn and closes conn when it exits.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.server.pumps.Done()
	}()

	for {
		select {
		case <-c.done:
			// Flush what is already queued, such as the error event that
			// triggered a forced close, then say goodbye.
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.flushQueued()
			c.conn.WriteMessage(websocket.CloseMessage, c.closeFrame())
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.writeMessage(msg); err != nil {
				log.Printf("server: session %s write error: %v", c.id, err)
				c.closeSend()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeSend()
				return
			}
		}
	}
}

// flushQueued writes whatever is buffered without waiting for more.
func (c *Client) flushQueued() {
	for {
		select {
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) writeMessage(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("server: failed to marshal %s message: %v", msg.Type, err)
		return nil
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readPump reads events until the connection fails or closes, then runs
// the session's disconnect cleanup.
func (c *Client) readPump() {
	defer c.server.pumps.Done()
	defer c.server.removeClient(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	// A pong proves the peer is alive.
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				lost := apperrors.Wrap(apperrors.CodeServerConnectionLost, "connection lost", err)
				log.Printf("server: session %s: %v", c.id, lost)
				c.closeWith(lost)
			}
			return
		}

		// Any inbound frame also proves liveness.
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		select {
		case <-c.done:
			return
		default:
		}

		c.handleMessage(data)
	}
}
