package server

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/hotstore/internal/model"
)

// serviceName is the fully-qualified gRPC service name.
const serviceName = "hotstore.v1.EventService"

// EventServiceServer is the gRPC surface of the event store. Every method
// takes and returns a google.protobuf.Struct holding the same JSON shape as
// the matching HTTP endpoint.
type EventServiceServer interface {
	CreateEvent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetEvent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FeedEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateEvent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteEvent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListBots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structMethod func(EventServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unary builds the method descriptor for a Struct-in, Struct-out RPC.
func unary(name string, invoke structMethod) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return invoke(srv.(EventServiceServer), ctx, req.(*structpb.Struct))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, handler)
		},
	}
}

// EventServiceDesc describes hotstore.v1.EventService.
var EventServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*EventServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateEvent", EventServiceServer.CreateEvent),
		unary("ListEvents", EventServiceServer.ListEvents),
		unary("GetEvent", EventServiceServer.GetEvent),
		unary("FeedEvents", EventServiceServer.FeedEvents),
		unary("UpdateEvent", EventServiceServer.UpdateEvent),
		unary("DeleteEvent", EventServiceServer.DeleteEvent),
		unary("Stats", EventServiceServer.Stats),
		unary("ListBots", EventServiceServer.ListBots),
		unary("Health", EventServiceServer.Health),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: protoFile,
}

// NewGRPCServer creates a gRPC server with standard interceptors, registers
// the EventService and reflection, and returns the server ready to serve.
func NewGRPCServer(s *EventsServer, logger *slog.Logger, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(logger),
			LoggingInterceptor(logger),
			AuthInterceptor(authToken),
		),
	)
	srv.RegisterService(&EventServiceDesc, s)
	reflection.Register(srv)
	return srv
}

// call decodes in into a Req, runs fn and encodes its result.
func call[Req, Resp any](ctx context.Context, in *structpb.Struct, fn func(context.Context, Req) (Resp, error)) (*structpb.Struct, error) {
	var req Req
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	resp, err := fn(ctx, req)
	if err != nil {
		return nil, grpcStatus(err)
	}
	return encodeStruct(resp)
}

func (s *EventsServer) CreateEvent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return call(ctx, in, s.createEvent)
}

func (s *EventsServer) ListEvents(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return call(ctx, in, s.listEvents)
}

func (s *EventsServer) GetEvent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return call(ctx, in, func(ctx context.Context, req idRequest) (*model.Event, error) {
		return s.getEvent(ctx, req.EventID)
	})
}

// FeedEvents never fails on backend errors; see Store.Feed.
func (s *EventsServer) FeedEvents(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return call(ctx, in, func(ctx context.Context, req feedRequest) (feedResponse, error) {
		return s.feedEvents(ctx, req), nil
	})
}

func (s *EventsServer) UpdateEvent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return call(ctx, in, s.updateEvent)
}

func (s *EventsServer) DeleteEvent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return call(ctx, in, func(ctx context.Context, req idRequest) (statusResponse, error) {
		return s.deleteEvent(ctx, req.EventID)
	})
}

func (s *EventsServer) Stats(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return call(ctx, in, func(ctx context.Context, _ struct{}) (statsResponse, error) {
		return s.stats(ctx)
	})
}

func (s *EventsServer) ListBots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return call(ctx, in, func(_ context.Context, req rosterRequest) (rosterResponse, error) {
		return s.roster(req)
	})
}

func (s *EventsServer) Health(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return call(ctx, in, func(ctx context.Context, _ struct{}) (healthResponse, error) {
		return s.health(ctx), nil
	})
}
