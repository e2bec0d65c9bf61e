// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transport provides the binary websocket wire transport: a
// Fiber-based server implementing pulsegrid.Sender that embedding
// applications run, and a thin client dialer for tooling that connects
// to one as a subscriber.
package transport

import (
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/pulsegrid/pulsegrid"
)

// conn wraps one accepted websocket connection. gofiber/websocket.Conn
// is not safe for concurrent writers, so every outbound frame for this
// connection serializes through mu.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, payload)
}

// Server is the provider-side websocket endpoint. It implements
// pulsegrid.Sender and feeds every inbound frame into the Worker
// through the pulsegrid.Handle it was built with.
type Server struct {
	app    *fiber.App
	handle *pulsegrid.Handle

	mu     sync.Mutex
	conns  map[pulsegrid.ProviderReqId]*conn
	nextID uint64
}

// NewServer returns a Server wired to handle. Call Listen to start
// accepting connections. Since the Handle must exist first, install it
// with a pulsegrid.SenderBox and Set the box to this Server before the
// first Tracer is declared, so early Declare broadcasts are not lost.
func NewServer(handle *pulsegrid.Handle) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	s := &Server{
		app:    app,
		handle: handle,
		conns:  map[pulsegrid.ProviderReqId]*conn{},
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws", websocket.New(s.onConnect))

	return s
}

// Listen blocks serving websocket connections on addr.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops accepting and serving connections.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) onConnect(ws *websocket.Conn) {
	id := pulsegrid.NewDirectId[pulsegrid.ProviderOrigin](atomic.AddUint64(&s.nextID, 1))
	c := &conn{ws: ws}

	s.mu.Lock()
	s.conns[id] = c
	s.mu.Unlock()

	s.handle.SetConnected(id, true)

	defer func() {
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
		s.handle.SetConnected(id, false)
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg pulsegrid.ServerToProvider
		if err := pulsegrid.UnpackGob(data, &msg); err != nil {
			continue
		}

		s.handle.Dispatch(pulsegrid.Envelope{ID: id, Payload: msg})
	}
}

// Respond implements pulsegrid.Sender by gob-encoding payload once and
// writing it to every connection named by direction.
func (s *Server) Respond(direction pulsegrid.Direction, payload pulsegrid.ProviderToServer) {
	data, err := pulsegrid.PackGob(payload)
	if err != nil {
		return
	}

	targets := s.targets(direction)
	for _, c := range targets {
		_ = c.write(data)
	}
}

func (s *Server) targets(direction pulsegrid.Direction) []*conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch direction.Kind() {
	case pulsegrid.DirectionBroadcast:
		out := make([]*conn, 0, len(s.conns))
		for _, c := range s.conns {
			out = append(out, c)
		}
		return out

	case pulsegrid.DirectionDirect:
		if c, ok := s.conns[direction.DirectID()]; ok {
			return []*conn{c}
		}
		return nil

	case pulsegrid.DirectionMulticast:
		out := make([]*conn, 0, len(direction.IDs()))
		for _, id := range direction.IDs() {
			if c, ok := s.conns[id]; ok {
				out = append(out, c)
			}
		}
		return out

	default:
		return nil
	}
}
