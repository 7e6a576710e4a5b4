package client

import (
	"context"
	"fmt"

	pb "github.com/pixperk/throttled/api/v1"
	"github.com/pixperk/throttled/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// stub for the coordinator's admission service
// no retries or caching, callers own the policy
type Client struct {
	addr   string
	conn   *grpc.ClientConn
	client pb.AdmissionServiceClient
}

func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return &Client{
		addr:   addr,
		conn:   conn,
		client: pb.NewAdmissionServiceClient(conn),
	}, nil
}

func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) Ping(ctx context.Context) (bool, error) {
	resp, err := c.client.Ping(ctx, &emptypb.Empty{})
	if err != nil {
		return false, fmt.Errorf("ping: %w", err)
	}
	return resp.GetValue(), nil
}

func (c *Client) Register(ctx context.Context, key string, cfg types.OperationConfig) (bool, error) {
	req, err := pb.NewRegisterRequest(key, cfg.MinInterval)
	if err != nil {
		return false, fmt.Errorf("build register request: %w", err)
	}

	resp, err := c.client.Register(ctx, req)
	if err != nil {
		return false, fmt.Errorf("register: %w", err)
	}
	return resp.GetValue(), nil
}

func (c *Client) Admit(ctx context.Context, key string) (bool, error) {
	resp, err := c.client.Admit(ctx, wrapperspb.String(key))
	if err != nil {
		return false, fmt.Errorf("admit: %w", err)
	}
	return resp.GetValue(), nil
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// reports whether retrying the same request can never succeed
func IsPermanent(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unimplemented:
		return true
	default:
		return false
	}
}
