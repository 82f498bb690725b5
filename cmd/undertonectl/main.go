/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Command undertonectl is the thin CLI client for undertoned: it dials the
// control socket, issues one request, prints the result, and exits.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/friendsincode/grimnir_radio/cmd/undertonectl/client"
	"github.com/friendsincode/grimnir_radio/internal/config"
	"github.com/spf13/cobra"
)

var socketPath string

var rootCmd = &cobra.Command{
	Use:   "undertonectl",
	Short: "Control the Undertone mixer daemon over its local socket",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "path to the daemon's control socket (default: $XDG_RUNTIME_DIR/undertone/daemon.sock)")

	rootCmd.AddCommand(
		channelsCmd(),
		stateCmd(),
		deviceStatusCmd(),
		outputsCmd(),
		setVolumeCmd(),
		setMuteCmd(),
		masterVolumeCmd(),
		masterMuteCmd(),
		setOutputCmd(),
		routeCmd(),
		profileCmd(),
		micCmd(),
		shutdownCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(64)
	}
}

// dial resolves the socket path (flag, else config default) and connects.
func dial() (*client.Client, error) {
	path := socketPath
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("resolve default socket path: %w", err)
		}
		path = cfg.SocketPath
	}
	return client.Dial(path)
}

// call is the common one-shot request/print helper every subcommand uses.
func call(methodType string, args map[string]any) error {
	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := c.Call(methodType, args)
	if err != nil {
		return err
	}
	if len(result) == 0 {
		fmt.Println("ok")
		return nil
	}
	var pretty any
	if err := json.Unmarshal(result, &pretty); err != nil {
		fmt.Println(string(result))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Println(string(result))
		return nil
	}
	fmt.Println(string(out))
	return nil
}

func channelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "Print the five channels' per-mix volume/mute state",
		RunE:  func(cmd *cobra.Command, args []string) error { return call("GetChannels", nil) },
	}
}

func stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the full mixer state snapshot",
		RunE:  func(cmd *cobra.Command, args []string) error { return call("GetState", nil) },
	}
}

func deviceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "device-status",
		Short: "Print graph connectivity and capture-device identity",
		RunE:  func(cmd *cobra.Command, args []string) error { return call("GetDeviceStatus", nil) },
	}
}

func outputsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outputs",
		Short: "List candidate hardware outputs for the monitor mix",
		RunE:  func(cmd *cobra.Command, args []string) error { return call("GetAvailableOutputs", nil) },
	}
}

func setVolumeCmd() *cobra.Command {
	var channel, mix string
	var volume float64
	cmd := &cobra.Command{
		Use:   "set-volume",
		Short: "Set a channel's volume on one mix",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("SetChannelVolume", map[string]any{"channel": channel, "mix": mix, "volume": volume})
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel name (required)")
	cmd.Flags().StringVar(&mix, "mix", "", "mix: stream or monitor (required)")
	cmd.Flags().Float64Var(&volume, "volume", 0, "volume in [0,1] (required)")
	cmd.MarkFlagRequired("channel")
	cmd.MarkFlagRequired("mix")
	cmd.MarkFlagRequired("volume")
	return cmd
}

func setMuteCmd() *cobra.Command {
	var channel, mix string
	var muted bool
	cmd := &cobra.Command{
		Use:   "set-mute",
		Short: "Mute or unmute a channel on one mix",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("SetChannelMute", map[string]any{"channel": channel, "mix": mix, "muted": muted})
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel name (required)")
	cmd.Flags().StringVar(&mix, "mix", "", "mix: stream or monitor (required)")
	cmd.Flags().BoolVar(&muted, "muted", true, "mute state")
	cmd.MarkFlagRequired("channel")
	cmd.MarkFlagRequired("mix")
	return cmd
}

func masterVolumeCmd() *cobra.Command {
	var mix string
	var volume float64
	cmd := &cobra.Command{
		Use:   "master-volume",
		Short: "Set a mix's master volume",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("SetMasterVolume", map[string]any{"mix": mix, "volume": volume})
		},
	}
	cmd.Flags().StringVar(&mix, "mix", "", "mix: stream or monitor (required)")
	cmd.Flags().Float64Var(&volume, "volume", 0, "volume in [0,1] (required)")
	cmd.MarkFlagRequired("mix")
	cmd.MarkFlagRequired("volume")
	return cmd
}

func masterMuteCmd() *cobra.Command {
	var mix string
	var muted bool
	cmd := &cobra.Command{
		Use:   "master-mute",
		Short: "Mute or unmute a mix's master",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("SetMasterMute", map[string]any{"mix": mix, "muted": muted})
		},
	}
	cmd.Flags().StringVar(&mix, "mix", "", "mix: stream or monitor (required)")
	cmd.Flags().BoolVar(&muted, "muted", true, "mute state")
	cmd.MarkFlagRequired("mix")
	return cmd
}

func setOutputCmd() *cobra.Command {
	var name string
	var nodeID uint32
	cmd := &cobra.Command{
		Use:   "set-output",
		Short: "Point the monitor mix at a hardware output device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("SetMonitorOutputDevice", map[string]any{"nodeId": nodeID, "name": name})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "output device node name (required)")
	cmd.Flags().Uint32Var(&nodeID, "node-id", 0, "output device node id, if known")
	cmd.MarkFlagRequired("name")
	return cmd
}

func routeCmd() *cobra.Command {
	root := &cobra.Command{Use: "route", Short: "Manage application routing rules"}

	var channel string
	var persistent bool
	set := &cobra.Command{
		Use:   "set <binary-or-pattern>",
		Short: "Route an application to a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("SetAppRoute", map[string]any{"binary": args[0], "channel": channel, "persistent": persistent})
		},
	}
	set.Flags().StringVar(&channel, "channel", "", "target channel (required)")
	set.Flags().BoolVar(&persistent, "persistent", true, "persist this route across restarts")
	set.MarkFlagRequired("channel")

	remove := &cobra.Command{
		Use:   "remove <binary-or-pattern>",
		Short: "Remove an application route",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("RemoveAppRoute", map[string]any{"binary": args[0]})
		},
	}

	root.AddCommand(set, remove)
	return root
}

func profileCmd() *cobra.Command {
	root := &cobra.Command{Use: "profile", Short: "Manage saved mixer profiles"}

	list := &cobra.Command{
		Use:  "list",
		RunE: func(cmd *cobra.Command, args []string) error { return call("ListProfiles", nil) },
	}
	save := &cobra.Command{
		Use:  "save <name>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("SaveProfile", map[string]any{"name": args[0]})
		},
	}
	load := &cobra.Command{
		Use:  "load <name>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("LoadProfile", map[string]any{"name": args[0]})
		},
	}
	del := &cobra.Command{
		Use:  "delete <name>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("DeleteProfile", map[string]any{"name": args[0]})
		},
	}

	root.AddCommand(list, save, load, del)
	return root
}

func micCmd() *cobra.Command {
	root := &cobra.Command{Use: "mic", Short: "Control mic gain/mute via the device-control glue"}

	var value float64
	gain := &cobra.Command{
		Use:  "gain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("SetMicGain", map[string]any{"value": value})
		},
	}
	gain.Flags().Float64Var(&value, "value", 0, "gain in [0,1] (required)")
	gain.MarkFlagRequired("value")

	toggleMute := &cobra.Command{
		Use:  "toggle-mute",
		RunE: func(cmd *cobra.Command, args []string) error { return call("ToggleMicMute", nil) },
	}

	root.AddCommand(gain, toggleMute)
	return root
}

func shutdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Ask the daemon to shut down gracefully",
		RunE:  func(cmd *cobra.Command, args []string) error { return call("Shutdown", nil) },
	}
}
