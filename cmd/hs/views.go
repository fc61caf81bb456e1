package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show hot log occupancy and limits",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := eventsClient.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		if jsonOutput {
			return printJSON(s)
		}
		printStats(os.Stdout, s)
		return nil
	},
}

var botsCmd = &cobra.Command{
	Use:     "bots",
	Short:   "List bots seen by the server",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stale, _ := cmd.Flags().GetDuration("stale")
		bots, err := eventsClient.ListBots(context.Background(), stale)
		if err != nil {
			return fmt.Errorf("listing bots: %w", err)
		}
		if jsonOutput {
			return printJSON(bots)
		}
		printBots(os.Stdout, bots)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the hotstore service",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := eventsClient.Health(context.Background())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}
		if jsonOutput {
			if err := printJSON(h); err != nil {
				return err
			}
		} else {
			backend := "connected"
			if !h.BackendConnected {
				backend = "disconnected"
			}
			fmt.Printf("Health: %s (backend %s)\n", h.Status, backend)
		}
		if h.Status != "ok" {
			return fmt.Errorf("unhealthy: %s", h.Status)
		}
		if !h.BackendConnected {
			return fmt.Errorf("backend disconnected")
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Download the hot log as JSONL",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		compress, _ := cmd.Flags().GetBool("zstd")

		data, err := httpClient().Export(context.Background(), compress)
		if err != nil {
			return fmt.Errorf("exporting: %w", err)
		}
		if out == "" || out == "-" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %d bytes to %s\n", len(data), out)
		return nil
	},
}

func init() {
	botsCmd.Flags().Duration("stale", 0, "treat bots silent for longer than this as disconnected (server default when 0)")

	exportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
	exportCmd.Flags().Bool("zstd", false, "compress with zstd")
}
