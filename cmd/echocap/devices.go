package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yok-tottii/echocap/internal/audio"
	"github.com/yok-tottii/echocap/internal/playback"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio devices and show which ones echocap would use",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			devices, err := audio.ListDevicesOnce()
			if err != nil {
				return err
			}
			snap := cfg.Clone()

			defaultOutput := ""
			for _, d := range devices {
				if d.IsDefault && d.Outputs > 0 {
					defaultOutput = d.Name
					break
				}
			}
			capture, captureErr := audio.FindLoopback(devices, defaultOutput, snap.Capture.DeviceMatch)
			output, outputErr := playback.FindOutput(devices, snap.Playback.DeviceName)

			if ctx.JSONMode() {
				resp := map[string]any{"devices": devices}
				if captureErr == nil {
					resp["capture"] = capture
				}
				if outputErr == nil {
					resp["playback"] = output
				}
				return writeJSON(cmd, resp)
			}

			rows := make([][]string, 0, len(devices))
			for _, d := range devices {
				role := ""
				switch {
				case captureErr == nil && d.ID == capture.ID:
					role = "capture"
				case outputErr == nil && d.ID == output.ID:
					role = "playback"
				case d.IsDefault:
					role = "default output"
				}
				rows = append(rows, []string{
					strconv.Itoa(d.ID),
					d.Name,
					d.HostAPI,
					strconv.Itoa(d.Inputs),
					strconv.Itoa(d.Outputs),
					role,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Host API", "In", "Out", "Role"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			if captureErr != nil {
				fmt.Fprintf(out, "Capture: %v\n", captureErr)
			}
			if outputErr != nil {
				fmt.Fprintf(out, "Playback: %v\n", outputErr)
			}
			return nil
		},
	}
}
