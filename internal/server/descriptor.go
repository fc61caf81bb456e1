package server

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	_ "google.golang.org/protobuf/types/known/structpb"
)

// protoFile is the registered name of the service's file descriptor.
const protoFile = "hotstore/v1/events.proto"

// The service has no generated code. Its file descriptor is built here and
// registered globally so that server reflection can describe it.
func init() {
	const structType = ".google.protobuf.Struct"
	methods := []string{
		"CreateEvent", "ListEvents", "GetEvent", "FeedEvents",
		"UpdateEvent", "DeleteEvent", "Stats", "ListBots", "Health",
	}
	svc := &descriptorpb.ServiceDescriptorProto{Name: proto.String("EventService")}
	for _, m := range methods {
		svc.Method = append(svc.Method, &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(m),
			InputType:  proto.String(structType),
			OutputType: proto.String(structType),
		})
	}
	fdp := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(protoFile),
		Package:    proto.String("hotstore.v1"),
		Dependency: []string{"google/protobuf/struct.proto"},
		Service:    []*descriptorpb.ServiceDescriptorProto{svc},
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/alfredjeanlab/hotstore/internal/server"),
		},
		Syntax: proto.String("proto3"),
	}
	fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
	if err != nil {
		panic("hotstore: building service descriptor: " + err.Error())
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic("hotstore: registering service descriptor: " + err.Error())
	}
}
