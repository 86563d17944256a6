package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/waymirror/waymirror/internal/archive"
	"github.com/waymirror/waymirror/internal/cdx"
)

func newSnapshotsCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "snapshots <url>",
		Short: "List archived captures of a URL",
		Long: `Queries the Wayback Machine CDX index and prints the distinct
captures of the given URL, oldest first. Useful for picking a date
window before mirroring.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshots(cmd, args[0], archive.DateRange{From: from, To: to})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "earliest capture date (YYYYMMDD)")
	cmd.Flags().StringVar(&to, "to", "", "latest capture date (YYYYMMDD)")

	return cmd
}

func runSnapshots(cmd *cobra.Command, rawURL string, window archive.DateRange) error {
	if err := validateWindow(window); err != nil {
		return err
	}

	client := cdx.New(cdx.Config{
		CDXEndpoint: cfg.Archive.CDXURL,
		WebEndpoint: cfg.Archive.WebURL,
		Timeout:     cfg.Timeout(),
		UserAgent:   cfg.Mirror.UserAgent,
	}, logger)

	captures, err := client.Snapshots(cmd.Context(), rawURL, window)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	if len(captures) == 0 {
		cmd.Println("No captures found.")
		return nil
	}

	for _, c := range captures {
		when, err := time.Parse("20060102150405", c.Timestamp)
		if err != nil {
			cmd.Printf("%s  %s\n", c.Timestamp, c.Original)
			continue
		}
		cmd.Printf("%s  %s\n", when.Format("2006-01-02 15:04:05"), c.Original)
	}
	cmd.Printf("%d captures\n", len(captures))
	return nil
}
