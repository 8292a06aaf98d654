package ws

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/Zidane-Khaled/RetroVerse/internal/protocol"
)

// Receiver consumes what the relay sends; lockstep.Coordinator implements it.
type Receiver interface {
	Connected()
	Receive(data []byte)
	Disconnected(reason string)
}

// Client is a peer's connection to the relay. Send is safe for concurrent
// use.
type Client struct {
	conn *websocket.Conn
	log  *zap.Logger
}

// Dial connects to the relay websocket at url, e.g.
// ws://localhost:8080/ws?code=ABC123.
func Dial(ctx context.Context, url string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}
	return &Client{conn: conn, log: log}, nil
}

func (c *Client) Send(ctx context.Context, msg protocol.Envelope) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Run delivers every message to r until the connection ends, then reports
// the disconnect to r. It returns nil when ctx was cancelled.
func (c *Client) Run(ctx context.Context, r Receiver) error {
	r.Connected()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.Disconnected("client closed")
				return nil
			}
			r.Disconnected(disconnectReason(err))
			return err
		}
		r.Receive(data)
	}
}

func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

// IsSessionFull reports whether err is the relay refusing a third
// participant.
func IsSessionFull(err error) bool {
	var ce websocket.CloseError
	return errors.As(err, &ce) &&
		ce.Code == websocket.StatusPolicyViolation &&
		ce.Reason == CloseReasonSessionFull
}

func disconnectReason(err error) string {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Reason != "" {
			return ce.Reason
		}
		return fmt.Sprintf("closed with status %d", ce.Code)
	}
	return "connection lost"
}
