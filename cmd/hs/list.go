package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/hotstore/internal/client"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List events in the hot log",
	GroupID: "events",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		id, _ := cmd.Flags().GetString("id")
		bot, _ := cmd.Flags().GetString("bot")
		typ, _ := cmd.Flags().GetString("type")
		orderBy, _ := cmd.Flags().GetString("order-by")
		asc, _ := cmd.Flags().GetBool("asc")

		req := &client.ListEventsRequest{
			Count:     count,
			EventID:   id,
			BotID:     bot,
			EventType: typ,
			OrderBy:   orderBy,
		}
		if cmd.Flags().Changed("min-severity") {
			sev, _ := cmd.Flags().GetInt("min-severity")
			req.MinSeverity = &sev
		}
		if asc {
			desc := false
			req.OrderDesc = &desc
		}

		resp, err := eventsClient.ListEvents(context.Background(), req)
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}
		if jsonOutput {
			return printJSON(resp)
		}
		printEventTable(os.Stdout, resp.Events)
		return nil
	},
}

func init() {
	listCmd.Flags().IntP("count", "n", 0, "maximum number of events (server default when 0)")
	listCmd.Flags().String("id", "", "only the event with this id")
	listCmd.Flags().String("bot", "", "filter by bot")
	listCmd.Flags().StringP("type", "t", "", "filter by event type")
	listCmd.Flags().Int("min-severity", 0, "only events at or above this severity")
	listCmd.Flags().String("order-by", "", "sort key: timestamp or severity")
	listCmd.Flags().Bool("asc", false, "sort ascending instead of descending")
}
