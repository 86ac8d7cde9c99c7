package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yok-tottii/echocap/internal/audio"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check devices, encoder and transcription backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snap := cfg.Clone()
			encoder := audio.NewFFmpegEncoder(snap.Encoder.FFmpegPath, snap.Encoder.MP3Bitrate)

			report := newChecker(cfg, encoder).Run(cmd.Context())

			if ctx.JSONMode() {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(report.Checks))
				for _, c := range report.Checks {
					rows = append(rows, []string{c.Name, c.Status.String(), c.Detail})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
				fmt.Fprintf(out, "Config: %s\n", ctx.configPath)
			}

			if failed := report.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			return nil
		},
	}
}
