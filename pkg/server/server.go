package server

import (
	"context"
	"net"
	"time"

	"github.com/hashicorp/go-hclog"
	pb "github.com/pixperk/throttled/api/v1"
	"github.com/pixperk/throttled/pkg/policy"
	"github.com/pixperk/throttled/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// serves admission decisions for the coordinator
type Server struct {
	pb.UnimplementedAdmissionServiceServer
	policy *policy.Controller
	grpc   *grpc.Server
	logger hclog.Logger
}

// wraps the admission policy into a gRPC server
func NewServer(ctl *policy.Controller, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	s := &Server{
		policy: ctl,
		logger: logger,
	}
	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(s.logUnary))
	pb.RegisterAdmissionServiceServer(s.grpc, s)

	return s
}

// traces every call at trace level, admissions are too frequent for debug
func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.logger.Warn("request failed", "method", info.FullMethod, "error", err)
	} else {
		s.logger.Trace("request served", "method", info.FullMethod, "took", time.Since(start))
	}
	return resp, err
}

// blocks serving lis until Stop
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

func (s *Server) Ping(ctx context.Context, req *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	return wrapperspb.Bool(true), nil
}

func (s *Server) Register(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	key, interval, err := pb.ParseRegisterRequest(req)
	if err != nil {
		return nil, toGRPCError(err)
	}

	result, err := s.policy.Apply(types.RegisterCmd{
		Key:    key,
		Config: types.OperationConfig{MinInterval: interval},
	})
	if err != nil {
		return nil, toGRPCError(err)
	}

	resp := result.(policy.RegisterResponse)
	s.logger.Debug("operation registered", "key", key, "min_interval", interval)

	return wrapperspb.Bool(resp.Accepted), nil
}

func (s *Server) Admit(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	result, err := s.policy.Apply(types.AdmitCmd{
		Key: req.GetValue(),
	})
	if err != nil {
		return nil, toGRPCError(err)
	}

	resp := result.(policy.AdmitResponse)
	return wrapperspb.Bool(resp.Granted), nil
}
