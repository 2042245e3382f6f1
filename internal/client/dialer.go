package client

import (
	"context"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// Conn is one transport connection to the host. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, code string) (Conn, error)
}

// WSDialer connects to the player websocket of a server at BaseURL (http, https, ws or wss).
type WSDialer struct {
	BaseURL string
	Dialer  *websocket.Dialer
}

func (d WSDialer) Dial(ctx context.Context, code string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, PlayURL(d.BaseURL, code), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// PlayURL builds the player websocket URL for a join code.
func PlayURL(base, code string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/play?code=" + url.QueryEscape(code)
}
