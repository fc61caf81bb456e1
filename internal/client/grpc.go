package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/hotstore/internal/model"
	"github.com/alfredjeanlab/hotstore/internal/presence"
)

const serviceName = "hotstore.v1.EventService"

// GRPCClient implements EventsClient using the gRPC transport. Requests and
// responses travel as google.protobuf.Struct values in the JSON shapes of
// the HTTP API.
type GRPCClient struct {
	conn  *grpc.ClientConn
	token string
}

// NewGRPCClient connects to the given gRPC address and returns a client.
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, token: token}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) CreateEvent(ctx context.Context, req *CreateEventRequest) (*CreateEventResponse, error) {
	var resp CreateEventResponse
	if err := c.invoke(ctx, "CreateEvent", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) ListEvents(ctx context.Context, req *ListEventsRequest) (*ListEventsResponse, error) {
	var resp ListEventsResponse
	if err := c.invoke(ctx, "ListEvents", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *GRPCClient) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var ev model.Event
	if err := c.invoke(ctx, "GetEvent", map[string]any{"event_id": id}, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *GRPCClient) FeedEvents(ctx context.Context, events []*model.Event) (int, error) {
	var resp feedResponse
	if err := c.invoke(ctx, "FeedEvents", map[string]any{"events": events}, &resp); err != nil {
		return 0, err
	}
	return resp.AddedCount, nil
}

func (c *GRPCClient) UpdateEvent(ctx context.Context, id string, u model.EventUpdate) error {
	req := struct {
		EventID string `json:"event_id"`
		model.EventUpdate
	}{id, u}
	return c.invoke(ctx, "UpdateEvent", req, nil)
}

func (c *GRPCClient) DeleteEvent(ctx context.Context, id string) error {
	return c.invoke(ctx, "DeleteEvent", map[string]any{"event_id": id}, nil)
}

func (c *GRPCClient) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := c.invoke(ctx, "Stats", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *GRPCClient) ListBots(ctx context.Context, stale time.Duration) ([]presence.Entry, error) {
	req := map[string]any{}
	if stale > 0 {
		req["stale"] = stale.String()
	}
	var resp botsResponse
	if err := c.invoke(ctx, "ListBots", req, &resp); err != nil {
		return nil, err
	}
	return resp.Bots, nil
}

func (c *GRPCClient) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.invoke(ctx, "Health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// invoke calls method with req encoded as a Struct and decodes the reply
// into result. A nil req sends an empty Struct; a nil result discards the
// reply.
func (c *GRPCClient) invoke(ctx context.Context, method string, req, result any) error {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	if req != nil {
		raw, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		if err := in.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/"+method, in, out); err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	raw, err := out.MarshalJSON()
	if err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
