// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pulsegridd",
	Short: "pulsegridd hosts a standalone pulsegrid provider process",
	Long: `pulsegridd hosts a standalone pulsegrid provider process based on the
config in $HOME/.pulsegrid.yaml, for applications that want to run the
telemetry provider out-of-process instead of embedding Install
directly.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pulsegrid.yaml)")
}
