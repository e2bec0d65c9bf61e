// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config loads the settings an embedding pulsegridd process
// needs to install and serve a Worker, using viper the way the teacher's
// cmd package does for its own serve command.
package config

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// InstallConfig is the bootstrap configuration for one pulsegrid
// process, typically loaded from $HOME/.pulsegrid.yaml plus
// environment overrides.
type InstallConfig struct {
	// AppName identifies this provider to connecting servers.
	AppName string `mapstructure:"app_name"`
	// ListenAddr is the address the websocket transport listens on,
	// e.g. ":9090".
	ListenAddr string `mapstructure:"listen_addr"`
	// GracePeriod is loaded from config but not applied: pulsegridd
	// does not read it, and Handle.Close takes no timeout.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	// PullInterval is loaded from config but not applied: pulsegridd
	// does not read it, and Pull-mode Recorders take their heartbeat
	// period from their own Option.
	PullInterval time.Duration `mapstructure:"pull_interval"`
	// ExporterAddr, when non-empty, starts a Prometheus-style scrape
	// endpoint on this address in addition to the websocket transport.
	ExporterAddr string `mapstructure:"exporter_addr"`
}

// defaults mirrors the teacher's pattern of seeding viper before a
// config file is read, so every key has a sane fallback.
func defaults(v *viper.Viper) {
	v.SetDefault("app_name", "pulsegrid")
	v.SetDefault("listen_addr", ":9090")
	v.SetDefault("grace_period", 10*time.Second)
	v.SetDefault("pull_interval", time.Second)
	v.SetDefault("exporter_addr", "")
}

// Load reads an InstallConfig from the file at path (if non-empty),
// $HOME/.pulsegrid.yaml otherwise, with PULSEGRID_-prefixed environment
// variables taking precedence over either.
func Load(path string) (*InstallConfig, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("PULSEGRID")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".pulsegrid")
		v.AddConfigPath("$HOME")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &InstallConfig{}
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}); err != nil {
		return nil, err
	}

	return cfg, nil
}
