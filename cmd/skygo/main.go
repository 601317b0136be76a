// SkyGo drives a two-axis celestial camera mount over a framed serial link.
package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	cfgPath string

	// Link overrides for monitor. Empty means use the config file.
	portName      string
	baudRate      int
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "skygo",
	Short: "Celestial camera mount controller",
	Long: `SkyGo - controller for a motorized two-axis camera mount.

It receives capture instructions over a framed text link, computes where each
target will stand at its fire time, aims the mount and triggers the camera.

Connection modes (monitor):
  Serial:    --port /dev/ttyAMA0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the SKYGO_PASSWORD
environment variable, or prompted interactively if not set.`,
	Version:      "0.3.0",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", filepath.Join("configs", "default.yaml"), "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
