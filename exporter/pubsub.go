// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package exporter

import (
	"context"

	"cloud.google.com/go/pubsub"

	"github.com/pulsegrid/pulsegrid"
	"github.com/pulsegrid/pulsegrid/transport"
)

// PubsubSink republishes every Data/State frame for one stream onto a
// Cloud Pub/Sub topic, as a secondary egress alongside the websocket
// transport. It is a long-running loop; call Run in its own goroutine.
type PubsubSink struct {
	client *transport.Client
	topic  *pubsub.Topic
	path   pulsegrid.Path
}

// NewPubsubSink dials the provider at addr and prepares to republish
// path's frames onto topic.
func NewPubsubSink(addr string, topic *pubsub.Topic, path pulsegrid.Path) (*PubsubSink, error) {
	client, err := transport.Dial(addr)
	if err != nil {
		return nil, err
	}

	return &PubsubSink{client: client, topic: topic, path: path}, nil
}

// Run subscribes to the sink's path and republishes every frame until
// ctx is done or the connection fails.
func (s *PubsubSink) Run(ctx context.Context) error {
	if err := s.client.Send(pulsegrid.ControlStreamMessage(s.path, pulsegrid.StartStream)); err != nil {
		return err
	}

	defer s.client.Send(pulsegrid.ControlStreamMessage(s.path, pulsegrid.StopStream))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := s.client.Receive()
		if err != nil {
			return err
		}

		var payload []byte
		switch msg.Kind {
		case pulsegrid.KindState:
			payload = msg.State
		case pulsegrid.KindData:
			payload = msg.Delta
		case pulsegrid.KindEndStream:
			return nil
		default:
			continue
		}

		result := s.topic.Publish(ctx, &pubsub.Message{
			Data:       payload,
			Attributes: map[string]string{"path": s.path.String()},
		})

		if _, err := result.Get(ctx); err != nil {
			return err
		}
	}
}

// Close releases the underlying websocket connection.
func (s *PubsubSink) Close() error {
	return s.client.Close()
}
