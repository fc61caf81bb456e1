package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/hotstore/internal/events"
	"github.com/alfredjeanlab/hotstore/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream change notifications from the server",
	Long:    "Prints a line per notification. Uses NATS when a NATS URL is known\n(--nats, HOTSTORE_NATS_URL or the active remote) and the server's SSE\nstream otherwise.",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topics, _ := cmd.Flags().GetStringSlice("topic")
		natsURL, _ := cmd.Flags().GetString("nats")
		if natsURL == "" {
			natsURL = os.Getenv("HOTSTORE_NATS_URL")
		}
		if natsURL == "" {
			if r, ok := activeRemote(); ok {
				natsURL = r.NATSURL
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		show := func(m events.Message) {
			if jsonOutput {
				fmt.Printf("{\"topic\":%q,\"data\":%s}\n", m.Topic, m.Data)
				return
			}
			fmt.Printf("%s %s %s\n",
				ui.RenderMuted(time.Now().Format("15:04:05")),
				ui.RenderAccent(strings.TrimPrefix(m.Topic, events.TopicPrefix)),
				m.Data,
			)
		}

		if natsURL != "" {
			return watchNATS(ctx, natsURL, topics, show)
		}
		return watchSSE(ctx, topics, show)
	},
}

// watchNATS subscribes to each topic pattern on the NATS bus.
func watchNATS(ctx context.Context, natsURL string, topics []string, fn func(events.Message)) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	if len(topics) == 0 {
		topics = []string{events.TopicAll}
	}
	merged := make(chan events.Message)
	for _, topic := range topics {
		ch, cancel, err := sub.Subscribe(topic)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		defer cancel()
		go func() {
			for m := range ch {
				select {
				case merged <- m:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-merged:
			fn(m)
		}
	}
}

// watchSSE follows the HTTP notification stream until ctx ends.
func watchSSE(ctx context.Context, topics []string, fn func(events.Message)) error {
	body, err := httpClient().Stream(ctx, topics)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer body.Close()

	err = readSSE(body, func(m sseMessage) {
		fn(events.Message{Topic: m.Event, Data: []byte(m.Data)})
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// sseMessage is one dispatched server-sent event.
type sseMessage struct {
	ID    string
	Event string
	Data  string
}

// readSSE parses a text/event-stream and calls fn for each event that
// carries data. Comment lines (keepalives) are ignored. Multiple data lines
// are joined with "\n".
func readSSE(r io.Reader, fn func(sseMessage)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)

	var (
		msg  sseMessage
		data []string
	)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if len(data) > 0 {
				msg.Data = strings.Join(data, "\n")
				fn(msg)
			}
			msg, data = sseMessage{}, nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			msg.ID = value
		case "event":
			msg.Event = value
		case "data":
			data = append(data, value)
		}
	}
	return sc.Err()
}

func init() {
	watchCmd.Flags().StringSlice("topic", nil, "topic patterns to follow, e.g. hotstore.event.created (default all)")
	watchCmd.Flags().String("nats", "", "NATS URL to subscribe through")
}
