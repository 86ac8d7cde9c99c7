package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yok-tottii/echocap/internal/store"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var favorites bool
	var session string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the recordings of a session or the favorites",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			root, err := cfg.DataPath()
			if err != nil {
				return err
			}

			dir, err := resolveSession(root, session)
			if err != nil {
				return err
			}
			st, err := store.OpenSession(root, dir)
			if err != nil {
				return err
			}

			c := st.Recordings()
			if favorites {
				c = st.Favorites()
			}
			records := c.List()

			if ctx.JSONMode() {
				return writeJSON(cmd, records)
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintf(out, "No %s in %s\n", c.Kind(), c.Dir())
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Timestamp", "Time", "Name", "Transcript", "MP3"},
				recordRows(records),
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&favorites, "favorites", false, "List the favorites instead of the session recordings")
	cmd.Flags().StringVar(&session, "session", "", "Session directory (name under the data directory or a path); defaults to the newest")
	return cmd
}

// resolveSession returns the session directory to list
func resolveSession(root, session string) (string, error) {
	session = strings.TrimSpace(session)
	if session != "" {
		dir := session
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return "", fmt.Errorf("session %s not found", dir)
		}
		return dir, nil
	}

	sessions, err := store.Sessions(root)
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", errors.New("no capture sessions yet, run echocap first or pass --session")
	}
	return sessions[0], nil
}

func recordRows(records []store.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			strconv.FormatInt(r.Timestamp, 10),
			time.Unix(r.Timestamp, 0).Format("2006-01-02 15:04:05"),
			r.Name,
			truncate(r.Text, 60),
			yesNo(r.MP3Filename != ""),
		})
	}
	return rows
}
