package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/hotstore/internal/client"
	"github.com/alfredjeanlab/hotstore/internal/model"
)

var getCmd = &cobra.Command{
	Use:     "get <id>",
	Aliases: []string{"show"},
	Short:   "Show one event",
	GroupID: "events",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ev, err := eventsClient.GetEvent(context.Background(), args[0])
		if err != nil {
			if client.IsNotFound(err) {
				return fmt.Errorf("event %s not found", args[0])
			}
			return fmt.Errorf("getting event: %w", err)
		}
		if jsonOutput {
			return printJSON(ev)
		}
		printEvent(os.Stdout, ev)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:     "update <id>",
	Short:   "Change the type, severity or payload of an event",
	GroupID: "events",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var u model.EventUpdate
		if cmd.Flags().Changed("type") {
			typ, _ := cmd.Flags().GetString("type")
			u.Type = &typ
		}
		if cmd.Flags().Changed("severity") {
			sev, _ := cmd.Flags().GetInt("severity")
			u.Severity = &sev
		}
		raw, _ := cmd.Flags().GetString("data")
		fields, _ := cmd.Flags().GetStringArray("field")
		data, err := parseData(raw, fields)
		if err != nil {
			return err
		}
		u.Data = data
		if u.IsEmpty() {
			return fmt.Errorf("nothing to update (use --type, --severity, --data or -d)")
		}

		if err := eventsClient.UpdateEvent(context.Background(), args[0], u); err != nil {
			if client.IsNotFound(err) {
				return fmt.Errorf("event %s not found", args[0])
			}
			return fmt.Errorf("updating event: %w", err)
		}
		if jsonOutput {
			return printJSON(map[string]string{"status": "updated", "event_id": args[0]})
		}
		fmt.Printf("Updated %s\n", args[0])
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Short:   "Remove an event from the hot log",
	GroupID: "events",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := eventsClient.DeleteEvent(context.Background(), args[0]); err != nil {
			if client.IsNotFound(err) {
				return fmt.Errorf("event %s not found", args[0])
			}
			return fmt.Errorf("deleting event: %w", err)
		}
		if jsonOutput {
			return printJSON(map[string]string{"status": "deleted", "event_id": args[0]})
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	updateCmd.Flags().StringP("type", "t", "", "new event type")
	updateCmd.Flags().Int("severity", 0, "new severity 0-10")
	updateCmd.Flags().String("data", "", "new payload as a JSON object (replaces the old one)")
	updateCmd.Flags().StringArrayP("field", "d", nil, "payload field as key=value (repeatable)")
}
