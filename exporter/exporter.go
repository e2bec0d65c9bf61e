// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package exporter adapts declared streams into a Prometheus-style
// scrape endpoint. It connects to a running provider as an ordinary
// websocket subscriber (see pulsegrid/transport), so it never touches
// the Worker directly.
package exporter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/pulsegrid/pulsegrid"
	"github.com/pulsegrid/pulsegrid/transport"
)

// source is the type-erased boundary between a registered Gauge and
// the Exporter's scrape loop, mirroring the recorderHandle pattern used
// between Worker and Recorder. Each source owns a dedicated websocket
// connection subscribed to exactly one path, so State/Data frames are
// attributed correctly without a path tag on the wire — the same
// one-connection-per-subscriber invariant transport/websocket.go and
// the Worker's Direct/ProviderReqId addressing rely on everywhere else.
type source interface {
	name() string
	value() (float64, bool)
	close() error
}

// gauge is a miniature Push-mode consumer: it folds State/Data frames
// into a local replica of S exactly as a Push-mode Tracer's subscribers
// would, so a scrape only ever reads gauge.value() and never performs
// network I/O or blocks on a round trip.
type gauge[S any, E any, A any] struct {
	gaugeName string
	path      pulsegrid.Path
	flow      pulsegrid.Flow[S, E, A]
	render    func(S) float64
	client    *transport.Client

	mu    sync.Mutex
	state S
	ready bool
}

func newGauge[S any, E any, A any](addr, name string, path pulsegrid.Path, flow pulsegrid.Flow[S, E, A], render func(S) float64) (*gauge[S, E, A], error) {
	client, err := transport.Dial(addr)
	if err != nil {
		return nil, err
	}

	g := &gauge[S, E, A]{gaugeName: name, path: path, flow: flow, render: render, client: client}

	if err := client.Send(pulsegrid.ControlStreamMessage(path, pulsegrid.StartStream)); err != nil {
		_ = client.Close()
		return nil, err
	}

	go g.receiveLoop()
	return g, nil
}

func (g *gauge[S, E, A]) name() string { return g.gaugeName }

func (g *gauge[S, E, A]) value() (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.ready {
		return 0, false
	}

	return g.render(g.state), true
}

func (g *gauge[S, E, A]) close() error {
	return g.client.Close()
}

// receiveLoop is the gauge's single reader: it owns g.client exclusively
// for the gauge's lifetime, folding every State/Data frame into g.state
// as it arrives. Returns once the connection errors or the stream ends.
func (g *gauge[S, E, A]) receiveLoop() {
	for {
		msg, err := g.client.Receive()
		if err != nil {
			return
		}

		switch msg.Kind {
		case pulsegrid.KindState:
			state, err := g.flow.UnpackState(msg.State)
			if err != nil {
				continue
			}

			g.mu.Lock()
			g.state = state
			g.ready = true
			g.mu.Unlock()

		case pulsegrid.KindData:
			events, err := g.flow.UnpackDelta(msg.Delta)
			if err != nil {
				continue
			}

			g.mu.Lock()
			for i := range events {
				g.flow.Apply(&g.state, events[i])
			}
			g.ready = true
			g.mu.Unlock()

		case pulsegrid.KindEndStream:
			return
		}
	}
}

// Exporter is a Prometheus-style scrape endpoint over an HTTP server. It
// dials one websocket connection per registered Gauge (see
// RegisterGauge), each subscribed to exactly one path, and serves
// /metrics from whatever state each connection's receive loop has
// folded in so far.
type Exporter struct {
	app  *fiber.App
	addr string

	mu      sync.Mutex
	sources []source
}

// New prepares an Exporter that will dial addr (the provider's websocket
// listen address) once for every Gauge later registered on it with
// RegisterGauge.
func New(addr string) (*Exporter, error) {
	e := &Exporter{
		app:  fiber.New(fiber.Config{DisableStartupMessage: true}),
		addr: addr,
	}

	e.app.Get("/metrics", e.handleMetrics)
	e.app.Get("/health", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	return e, nil
}

// RegisterGauge exposes one stream's state as a scalar Prometheus gauge
// named name, decoded with flow and reduced to a float64 by render. It
// dials its own subscriber connection and starts folding State/Data
// frames into a local replica immediately, rather than round-tripping a
// GetSnapshot request on every scrape.
func RegisterGauge[S any, E any, A any](e *Exporter, name string, path pulsegrid.Path, flow pulsegrid.Flow[S, E, A], render func(S) float64) error {
	g, err := newGauge(e.addr, name, path, flow, render)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.sources = append(e.sources, g)
	e.mu.Unlock()

	return nil
}

// Listen serves the scrape endpoint on addr.
func (e *Exporter) Listen(addr string) error {
	return e.app.Listen(addr)
}

// Close releases every registered Gauge's websocket connection.
func (e *Exporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var lastErr error
	for _, s := range e.sources {
		if err := s.close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

func (e *Exporter) handleMetrics(c *fiber.Ctx) error {
	e.mu.Lock()
	sources := append([]source(nil), e.sources...)
	e.mu.Unlock()

	var b strings.Builder
	for _, s := range sources {
		value, ok := s.value()
		if !ok {
			continue
		}

		fmt.Fprintf(&b, "# TYPE %s gauge\n%s %v\n", s.name(), s.name(), value)
	}

	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	return c.SendString(b.String())
}
