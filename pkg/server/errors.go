package server

import (
	"errors"

	pb "github.com/pixperk/throttled/api/v1"
	"github.com/pixperk/throttled/pkg/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// converts domain errors to gRPC status errors
func toGRPCError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, types.ErrEmptyKey),
		errors.Is(err, types.ErrInvalidInterval),
		errors.Is(err, pb.ErrMalformedRegister):
		return status.Error(codes.InvalidArgument, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
