package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/hotstore/internal/client"
	"github.com/alfredjeanlab/hotstore/internal/model"
	eventsync "github.com/alfredjeanlab/hotstore/internal/sync"
)

// feedBatchSize bounds one FeedEvents request.
const feedBatchSize = 500

// feedBatchLimit returns the batch size for a server whose stats are st.
// The server keeps at most MaxRetrievals fed events, so a larger request
// would be cut down. A zero limit means nothing can be fed.
func feedBatchLimit(st *client.Stats) int {
	if st == nil {
		return feedBatchSize
	}
	return min(feedBatchSize, max(st.Limits.MaxRetrievals, 0))
}

var feedCmd = &cobra.Command{
	Use:     "feed",
	Short:   "Re-import archived events from a JSONL file",
	Long:    "Reads a JSONL export (plain or zstd-compressed) and feeds its events back\ninto the hot log. Events already present are skipped by the server.",
	GroupID: "events",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")

		events, malformed, err := readFeedFile(path, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if malformed > 0 {
			fail("skipped %d malformed lines", malformed)
		}

		st, err := eventsClient.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("reading server limits: %w", err)
		}
		size := feedBatchLimit(st)
		if size == 0 && len(events) > 0 {
			return fmt.Errorf("server retrieval limit is 0; nothing can be fed")
		}

		added := 0
		for _, batch := range batches(events, size) {
			n, err := eventsClient.FeedEvents(context.Background(), batch)
			if err != nil {
				return fmt.Errorf("feeding events: %w", err)
			}
			added += n
		}

		if jsonOutput {
			return printJSON(map[string]int{"parsed": len(events), "malformed": malformed, "added": added})
		}
		fmt.Printf("Fed %d events, %d added\n", len(events), added)
		return nil
	},
}

// readFeedFile loads events from path, or from stdin when path is "-".
func readFeedFile(path string, stdin io.Reader) ([]*model.Event, int, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", path, err)
	}
	data, err = eventsync.Decompress(data)
	if err != nil {
		return nil, 0, err
	}
	res, err := eventsync.ParseJSONL(bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	return res.Events, res.Malformed, nil
}

// batches splits events into consecutive slices of at most size.
func batches(events []*model.Event, size int) [][]*model.Event {
	var out [][]*model.Event
	for len(events) > size {
		out = append(out, events[:size])
		events = events[size:]
	}
	if len(events) > 0 {
		out = append(out, events)
	}
	return out
}

func init() {
	feedCmd.Flags().StringP("file", "f", "-", "JSONL file to read (- for stdin)")
}
