// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/pulsegrid/pulsegrid"
	pgconfig "github.com/pulsegrid/pulsegrid/config"
	"github.com/pulsegrid/pulsegrid/exporter"
	"github.com/pulsegrid/pulsegrid/telemetry"
	"github.com/pulsegrid/pulsegrid/transport"
)

const meterName = "pulsegrid"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve starts a pulsegrid provider and blocks until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := pgconfig.Load(cfgFile)
		if err != nil {
			fmt.Printf("error loading config [%v]\n", err)
			os.Exit(1)
		}

		instanceID := uuid.New().String()
		fmt.Printf("starting pulsegrid provider %q instance %s on %s\n", cfg.AppName, instanceID, cfg.ListenAddr)

		slog.SetDefault(slog.New(installTelemetry()))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		box := pulsegrid.NewSenderBox()
		handle := pulsegrid.Install(ctx, cfg.AppName, box)
		server := transport.NewServer(handle)
		box.Set(server)

		go func() {
			if err := server.Listen(cfg.ListenAddr); err != nil {
				fmt.Printf("websocket listener stopped [%v]\n", err)
			}
		}()

		if cfg.ExporterAddr != "" {
			exp, err := exporter.New(cfg.ListenAddr)
			if err != nil {
				fmt.Printf("error starting exporter [%v]\n", err)
				os.Exit(1)
			}

			go func() {
				if err := exp.Listen(cfg.ExporterAddr); err != nil {
					fmt.Printf("exporter listener stopped [%v]\n", err)
				}
			}()
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt)
		<-quit

		cancel()
		_ = server.Shutdown()
		_ = handle.Close()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// installTelemetry builds the telemetry.Handler that bridges the
// Worker's and Recorders' structured log records into otel spans and
// instruments, following the stack's own go.opentelemetry.io/otel
// package: it reaches for the global Tracer/Meter rather than
// constructing an SDK provider, since pulsegrid is a library and the
// embedding application owns exporter configuration.
func installTelemetry() telemetry.Handler {
	tracer := otel.Tracer(meterName)
	meter := otel.Meter(meterName)

	h := telemetry.New(nil, tracer, true)

	if c, err := meter.Int64Counter("pulsegrid.worker.recorders_registered"); err == nil {
		h.WithInt64Counter("pulsegrid.worker.recorders_registered", c)
	}
	if c, err := meter.Int64Counter("pulsegrid.worker.connections"); err == nil {
		h.WithInt64Counter("pulsegrid.worker.connections", c)
	}
	if c, err := meter.Int64Counter("pulsegrid.recorder.subscribers"); err == nil {
		h.WithInt64Counter("pulsegrid.recorder.subscribers", c)
	}
	if hg, err := meter.Float64Histogram("pulsegrid.recorder.delta_batch_size"); err == nil {
		h.WithFloat64Histogram("pulsegrid.recorder.delta_batch_size", hg)
	}

	return h
}
