// Package v1 defines the Admission gRPC service spoken between throttle
// nodes. Messages are protobuf well-known types so the service needs no
// generated code:
//
//	Ping(google.protobuf.Empty) returns (google.protobuf.BoolValue)
//	Register(google.protobuf.Struct) returns (google.protobuf.BoolValue)
//	Admit(google.protobuf.StringValue) returns (google.protobuf.BoolValue)
//
// A Register payload is a Struct with a string field "key" and a number
// field "min_interval_ns".
package v1

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "throttled.v1.AdmissionService"

	PingFullMethod     = "/" + ServiceName + "/Ping"
	RegisterFullMethod = "/" + ServiceName + "/Register"
	AdmitFullMethod    = "/" + ServiceName + "/Admit"

	fieldKey         = "key"
	fieldMinInterval = "min_interval_ns"
)

var ErrMalformedRegister = errors.New("malformed register request")

// builds the Register payload
func NewRegisterRequest(key string, minInterval time.Duration) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldKey:         key,
		fieldMinInterval: float64(minInterval.Nanoseconds()),
	})
}

// extracts key and interval from a Register payload
func ParseRegisterRequest(req *structpb.Struct) (string, time.Duration, error) {
	fields := req.GetFields()

	keyVal, ok := fields[fieldKey].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", 0, fmt.Errorf("%w: missing %s", ErrMalformedRegister, fieldKey)
	}

	ivVal, ok := fields[fieldMinInterval].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return "", 0, fmt.Errorf("%w: missing %s", ErrMalformedRegister, fieldMinInterval)
	}
	ns := ivVal.NumberValue
	if math.IsNaN(ns) || math.IsInf(ns, 0) || ns >= math.MaxInt64 || ns < math.MinInt64 {
		return "", 0, fmt.Errorf("%w: %s out of range", ErrMalformedRegister, fieldMinInterval)
	}

	return keyVal.StringValue, time.Duration(int64(ns)), nil
}

type AdmissionServiceServer interface {
	Ping(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	Register(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
	Admit(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
}

// embed to stay forward compatible with new methods
type UnimplementedAdmissionServiceServer struct{}

func (UnimplementedAdmissionServiceServer) Ping(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	return nil, errUnimplemented("Ping")
}

func (UnimplementedAdmissionServiceServer) Register(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error) {
	return nil, errUnimplemented("Register")
}

func (UnimplementedAdmissionServiceServer) Admit(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return nil, errUnimplemented("Admit")
}

func RegisterAdmissionServiceServer(s grpc.ServiceRegistrar, srv AdmissionServiceServer) {
	s.RegisterService(&AdmissionService_ServiceDesc, srv)
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdmissionServiceServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PingFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdmissionServiceServer).Ping(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func registerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdmissionServiceServer).Register(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RegisterFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdmissionServiceServer).Register(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func admitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdmissionServiceServer).Admit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AdmitFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdmissionServiceServer).Admit(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var AdmissionService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdmissionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: pingHandler},
		{MethodName: "Register", Handler: registerHandler},
		{MethodName: "Admit", Handler: admitHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "throttled/v1/admission.proto",
}

type AdmissionServiceClient interface {
	Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	Register(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	Admit(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
}

type admissionServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAdmissionServiceClient(cc grpc.ClientConnInterface) AdmissionServiceClient {
	return &admissionServiceClient{cc: cc}
}

func (c *admissionServiceClient) Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, PingFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *admissionServiceClient) Register(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, RegisterFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *admissionServiceClient) Admit(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, AdmitFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
