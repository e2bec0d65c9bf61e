// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"sync"

	"github.com/fasthttp/websocket"

	"github.com/pulsegrid/pulsegrid"
)

// Client is a thin subscriber-side dialer for tooling (CLIs, tests,
// bridging exporters) that need to speak the wire protocol without
// running a full Worker.
type Client struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// Dial connects to a Server's /ws endpoint at addr (host:port, no
// scheme).
func Dial(addr string) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		return nil, err
	}

	return &Client{ws: ws}, nil
}

// Send writes one ServerToProvider request.
func (c *Client) Send(msg pulsegrid.ServerToProvider) error {
	data, err := pulsegrid.PackGob(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// Receive blocks for the next ProviderToServer frame.
func (c *Client) Receive() (pulsegrid.ProviderToServer, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return pulsegrid.ProviderToServer{}, err
	}

	var msg pulsegrid.ProviderToServer
	err = pulsegrid.UnpackGob(data, &msg)
	return msg, err
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.ws.Close()
}
