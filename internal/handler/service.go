// internal/handler/service.go
package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "forecaster.v1.Forecaster"

const (
	getStatusMethod = "/" + ServiceName + "/GetStatus"
	forecastMethod  = "/" + ServiceName + "/Forecast"
)

// ForecasterServer is the server API for the Forecaster service.
// Messages are well-known types so no generated stubs are needed.
type ForecasterServer interface {
	// GetStatus reports the progress of the current run.
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// Forecast rolls the published model out over a requested horizon.
	Forecast(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterForecasterServer registers srv with s.
func RegisterForecasterServer(s grpc.ServiceRegistrar, srv ForecasterServer) {
	s.RegisterService(&ForecasterServiceDesc, srv)
}

func getStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ForecasterServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getStatusMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ForecasterServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func forecastHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ForecasterServer).Forecast(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: forecastMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ForecasterServer).Forecast(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ForecasterServiceDesc is the grpc.ServiceDesc for the Forecaster service.
var ForecasterServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ForecasterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: getStatusHandler},
		{MethodName: "Forecast", Handler: forecastHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "forecaster/v1/forecaster.proto",
}

// Client calls the Forecaster service over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getStatusMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Forecast(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, forecastMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
