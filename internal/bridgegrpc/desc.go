package bridgegrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "termlink.bridge.v1.Bridge"

const (
	methodPing         = "/" + serviceName + "/Ping"
	methodSend         = "/" + serviceName + "/Send"
	methodStartSession = "/" + serviceName + "/StartSession"
	methodSendInput    = "/" + serviceName + "/SendInput"
	methodStop         = "/" + serviceName + "/Stop"
	methodEvents       = "/" + serviceName + "/Events"
)

// Request struct field names.
const (
	fieldSessionID  = "session_id"
	fieldCredential = "credential"
	fieldWorkingDir = "working_dir"
	fieldInput      = "input"
)

// bridgeServer is the server side of the bridge service. Messages are
// protobuf well-known types so the default codec carries them.
type bridgeServer interface {
	Ping(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Send(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	StartSession(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	SendInput(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Stop(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Events(*emptypb.Empty, grpc.ServerStream) error
}

var bridgeServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*bridgeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: pingHandler},
		{MethodName: "Send", Handler: sendHandler},
		{MethodName: "StartSession", Handler: structHandler(methodStartSession, bridgeServer.StartSession)},
		{MethodName: "SendInput", Handler: structHandler(methodSendInput, bridgeServer.SendInput)},
		{MethodName: "Stop", Handler: structHandler(methodStop, bridgeServer.Stop)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Events", Handler: eventsHandler, ServerStreams: true},
	},
	Metadata: "termlink/bridge.proto",
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(bridgeServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPing}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(bridgeServer).Ping(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func sendHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(bridgeServer).Send(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSend}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(bridgeServer).Send(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

type structMethod func(bridgeServer, context.Context, *structpb.Struct) (*emptypb.Empty, error)

func structHandler(fullMethod string, call structMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(bridgeServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(bridgeServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(bridgeServer).Events(in, stream)
}

func stringField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	value, ok := req.GetFields()[name]
	if !ok || value == nil {
		return ""
	}
	return value.GetStringValue()
}

func newStruct(fields map[string]string) *structpb.Struct {
	out := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(fields))}
	for key, value := range fields {
		out.Fields[key] = structpb.NewStringValue(value)
	}
	return out
}
