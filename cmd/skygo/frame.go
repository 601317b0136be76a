package main

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/cjeanneret/SkyGo/internal/link/frame"
)

var copyFrame bool

var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Encode or decode link frames",
}

var frameEncodeCmd = &cobra.Command{
	Use:   "encode <kind> [fields...]",
	Short: "Print the wire form of a message",
	Long: `Print the wire form of a message, checksum included.
kind is a name (instructions) or a number (4).

Examples:
  skygo frame encode response 1
  skygo frame encode instructions 1 m42-a 1 --copy`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wire, err := encodeArgs(args)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), wire)
		if copyFrame {
			if err := clipboard.WriteAll(wire); err != nil {
				return fmt.Errorf("copy to clipboard: %w", err)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Copied to clipboard.")
		}
		return nil
	},
}

var frameDecodeCmd = &cobra.Command{
	Use:   "decode <frame>",
	Short: "Check and decode one wire frame",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := frame.Decode(strings.TrimSpace(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), describe(m))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(frameCmd)
	frameCmd.AddCommand(frameEncodeCmd, frameDecodeCmd)
	frameEncodeCmd.Flags().BoolVar(&copyFrame, "copy", false, "also copy the frame to the clipboard")
}

// encodeArgs builds a message from a kind and its fields and encodes it.
func encodeArgs(args []string) (string, error) {
	kind, err := frame.ParseKind(args[0])
	if err != nil {
		return "", err
	}
	fields := args[1:]
	for _, f := range fields {
		if strings.ContainsAny(f, "$,;") {
			return "", fmt.Errorf("field %q must not contain '$', ',' or ';'", f)
		}
	}
	return frame.Encode(frame.NewMessage(kind, fields...)), nil
}

func describe(m frame.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Kind:   %s (%d)\n", m.Kind, m.Kind)
	for i, f := range m.Fields {
		fmt.Fprintf(&b, "Field %d: %s\n", i, f)
	}
	return b.String()
}
