package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/hotstore/internal/client"
	"github.com/alfredjeanlab/hotstore/internal/model"
	"github.com/alfredjeanlab/hotstore/internal/presence"
	"github.com/alfredjeanlab/hotstore/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printEvent(w io.Writer, ev *model.Event) {
	fmt.Fprintf(w, "ID:         %s\n", ev.ID)
	fmt.Fprintf(w, "Type:       %s\n", ev.Type)
	fmt.Fprintf(w, "Severity:   %s\n", ui.RenderSeverity(ev.Severity))
	if ev.BotID != "" {
		fmt.Fprintf(w, "Bot:        %s\n", ev.BotID)
	}
	fmt.Fprintf(w, "Created At: %s\n", ev.CreatedAt().Local().Format(timeLayout))
	if ev.IsRetrieved() {
		fmt.Fprintf(w, "Retrieved:  %s\n", time.UnixMilli(*ev.Retrieval).Local().Format(timeLayout))
	}
	if len(ev.Data) > 0 {
		data, err := json.MarshalIndent(ev.Data, "            ", "  ")
		if err == nil {
			fmt.Fprintf(w, "Data:       %s\n", data)
		}
	}
}

func printEventTable(w io.Writer, events []*model.Event) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tSEVERITY\tTYPE\tBOT\tDATA")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.ID,
			ev.CreatedAt().Local().Format(timeLayout),
			ui.RenderSeverity(ev.Severity),
			ev.Type,
			ev.BotID,
			summarizeData(ev.Data, 50),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d events\n", len(events))
}

// summarizeData renders a payload as compact JSON with sorted keys, cut to
// max runes.
func summarizeData(data map[string]any, max int) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := json.Marshal(data[k])
		if err != nil {
			continue
		}
		parts = append(parts, k+"="+string(v))
	}
	s := strings.Join(parts, " ")
	if r := []rune(s); len(r) > max {
		s = string(r[:max-3]) + "..."
	}
	return s
}

func printStats(w io.Writer, s *client.Stats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "key:\t%s\n", s.Key)
	fmt.Fprintf(tw, "total:\t%d / %d\n", s.Total, s.Limits.MaxEvents)
	fmt.Fprintf(tw, "retrievals:\t%d / %d\n", s.Retrievals, s.Limits.MaxRetrievals)
	fmt.Fprintf(tw, "expired:\t%d (max age %s)\n", s.Expired, s.Limits.RetrievalMaxAge)
	if s.Malformed > 0 {
		fmt.Fprintf(tw, "malformed:\t%s\n", ui.RenderError(fmt.Sprint(s.Malformed)))
	} else {
		fmt.Fprintf(tw, "malformed:\t0\n")
	}
	tw.Flush()
}

func printBots(w io.Writer, bots []presence.Entry) {
	if len(bots) == 0 {
		fmt.Fprintln(w, "no bots seen")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BOT\tSTATE\tEVENTS\tLAST SEEN\tLAST TYPE\tLAST ERROR")
	for _, b := range bots {
		state := ui.RenderOK("connected")
		switch {
		case b.Idle:
			state = ui.RenderMuted("idle")
		case !b.Connected:
			state = ui.RenderMuted("stale")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s ago\t%s\t%s\n",
			b.BotID,
			state,
			b.EventCount,
			time.Duration(b.IdleSecs*float64(time.Second)).Round(time.Second),
			b.LastEventType,
			b.LastError,
		)
	}
	tw.Flush()
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, ui.RenderError("Error: ")+format+"\n", args...)
}
