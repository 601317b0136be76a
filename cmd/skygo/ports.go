package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/SkyGo/internal/link"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := link.ListPorts()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(ports) == 0 {
			fmt.Fprintln(out, "No serial ports found.")
			return nil
		}
		for _, p := range ports {
			fmt.Fprintln(out, formatPort(p))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func formatPort(p link.PortInfo) string {
	if !p.IsUSB {
		return p.Name
	}
	s := fmt.Sprintf("%s  USB %s:%s", p.Name, p.VID, p.PID)
	if p.Product != "" {
		s += "  " + p.Product
	}
	if p.Serial != "" {
		s += "  serial " + p.Serial
	}
	return s
}
