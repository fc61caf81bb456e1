package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/hotstore/internal/client"
)

var createCmd = &cobra.Command{
	Use:     "create <type>",
	Short:   "Append an event to the hot log",
	GroupID: "events",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("data")
		fields, _ := cmd.Flags().GetStringArray("field")
		bot, _ := cmd.Flags().GetString("bot")

		data, err := parseData(raw, fields)
		if err != nil {
			return err
		}
		req := &client.CreateEventRequest{
			EventType: args[0],
			Data:      data,
			BotID:     bot,
		}
		if cmd.Flags().Changed("severity") {
			sev, _ := cmd.Flags().GetInt("severity")
			req.Severity = &sev
		}

		resp, err := eventsClient.CreateEvent(context.Background(), req)
		if err != nil {
			return fmt.Errorf("creating event: %w", err)
		}
		if jsonOutput {
			return printJSON(resp)
		}
		fmt.Printf("Created %s\n", resp.EventID)
		return nil
	},
}

func init() {
	createCmd.Flags().String("data", "", "event payload as a JSON object")
	createCmd.Flags().StringArrayP("field", "d", nil, "payload field as key=value (repeatable)")
	createCmd.Flags().String("bot", "", "bot that emitted the event")
	createCmd.Flags().Int("severity", 0, "severity 0-10")
}
