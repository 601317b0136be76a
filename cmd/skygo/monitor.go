package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/SkyGo/internal/link"
	"github.com/cjeanneret/SkyGo/internal/tui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch and talk on the link in a terminal UI",
	Long: `Open the link and show decoded frames with reassembly counters.
Frames typed at the prompt are sent to the peer, either as
"kind,field,..." (kind by name or number) or as a complete wire frame.

The link comes from --port or --url when given, otherwise from the
config file.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVarP(&portName, "port", "p", "", "Serial port device")
	monitorCmd.Flags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")
	monitorCmd.Flags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	monitorCmd.Flags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	monitorCmd.Flags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// monitorEndpoint prefers the command line over the config file.
func monitorEndpoint() (link.Endpoint, error) {
	if portName != "" || wsURL != "" {
		return link.Endpoint{
			Port:        portName,
			Baud:        baudRate,
			URL:         wsURL,
			Username:    wsUsername,
			NoSSLVerify: wsNoSSLVerify,
			ReadTimeout: 50 * time.Millisecond,
		}, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return link.Endpoint{}, fmt.Errorf("no --port or --url given: %w", err)
	}
	return linkEndpoint(cfg), nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	e, err := monitorEndpoint()
	if err != nil {
		return err
	}
	conn, connInfo, err := link.Open(e)
	if err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	defer conn.Close()

	return tui.Run(cmd.Context(), link.NewBridge(conn), connInfo)
}
