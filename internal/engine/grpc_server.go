package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Сервис описан вручную: запрос и ответ - google.protobuf.Struct в том же
// JSON-формате, что и HTTP, поэтому отдельный .proto не нужен.
const (
	commandServiceName = "rootgw.v1.CommandService"
	submitMethod       = "/" + commandServiceName + "/Submit"
)

type CommandServiceServer interface {
	Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var commandServiceDesc = grpc.ServiceDesc{
	ServiceName: commandServiceName,
	HandlerType: (*CommandServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rootgw/v1/command.proto",
}

func RegisterCommandServiceServer(s grpc.ServiceRegistrar, srv CommandServiceServer) {
	s.RegisterService(&commandServiceDesc, srv)
}

func submitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CommandServiceServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: submitMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CommandServiceServer).Submit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// SubmitCommand - клиентская сторона того же метода.
func SubmitCommand(ctx context.Context, cc grpc.ClientConnInterface, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, submitMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type GRPCGatewayServer struct {
	pipeline *Pipeline
}

func NewGRPCGatewayServer(p *Pipeline) *GRPCGatewayServer {
	return &GRPCGatewayServer{pipeline: p}
}

// Submit гонит команду через тот же пайплайн, что и HTTP. Отказ пайплайна -
// обычный ответ с status=fail, gRPC-ошибка только для сбоев транспорта.
func (s *GRPCGatewayServer) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	src, ok := SourceFrom(ctx)
	if !ok {
		return nil, status.Error(codes.PermissionDenied, "unknown ingress")
	}

	raw, err := protojson.Marshal(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encode command: %v", err)
	}

	out := s.pipeline.SubmitRaw(ctx, src, raw, nil)

	resp, err := toStruct(out)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode outcome: %v", err)
	}
	return resp, nil
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("not an object: %w", err)
	}
	return structpb.NewStruct(m)
}
