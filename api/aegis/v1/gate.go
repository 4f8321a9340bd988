// Package aegisv1 defines the aegis.v1.CommandGate gRPC service. Messages are
// google.protobuf.Struct so the service needs no generated code.
package aegisv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully-qualified gate service name.
	ServiceName = "aegis.v1.CommandGate"
	// VehicleService is the health service that reports NOT_SERVING while
	// the vehicle is returning to launch.
	VehicleService = "aegis.v1.Vehicle"

	SubmitMethod       = "/aegis.v1.CommandGate/Submit"
	SafeModeMethod     = "/aegis.v1.CommandGate/SafeMode"
	RecentEventsMethod = "/aegis.v1.CommandGate/RecentEvents"
)

// CommandGateServer is the server API for the CommandGate service.
type CommandGateServer interface {
	// Submit validates one framed command and returns its decision.
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// SafeMode returns the current safe-mode state.
	SafeMode(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// RecentEvents returns the last n log events ({"n": 20}).
	RecentEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterCommandGateServer registers srv on s.
func RegisterCommandGateServer(s grpc.ServiceRegistrar, srv CommandGateServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc is the grpc.ServiceDesc for CommandGate.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CommandGateServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
		{MethodName: "SafeMode", Handler: safeModeHandler},
		{MethodName: "RecentEvents", Handler: recentEventsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "aegis/v1/gate.proto",
}

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CommandGateServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SubmitMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CommandGateServer).Submit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func safeModeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CommandGateServer).SafeMode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SafeModeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CommandGateServer).SafeMode(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func recentEventsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CommandGateServer).RecentEvents(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RecentEventsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CommandGateServer).RecentEvents(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// CommandGateClient is the client API for the CommandGate service.
type CommandGateClient struct {
	cc grpc.ClientConnInterface
}

// NewCommandGateClient wraps cc.
func NewCommandGateClient(cc grpc.ClientConnInterface) *CommandGateClient {
	return &CommandGateClient{cc: cc}
}

// Submit calls CommandGate.Submit.
func (c *CommandGateClient) Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SubmitMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SafeMode calls CommandGate.SafeMode.
func (c *CommandGateClient) SafeMode(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SafeModeMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RecentEvents calls CommandGate.RecentEvents.
func (c *CommandGateClient) RecentEvents(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RecentEventsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
