package client_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pixperk/throttled/pkg/client"
	"github.com/pixperk/throttled/pkg/policy"
	"github.com/pixperk/throttled/pkg/server"
	"github.com/pixperk/throttled/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// starts an admission server on a random port and returns its address
func startServer(t testing.TB) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := server.NewServer(policy.NewController(), nil)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	return lis.Addr().String()
}

func newClient(t testing.TB, addr string) *client.Client {
	t.Helper()
	c, err := client.NewClient(addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPing(t *testing.T) {
	c := newClient(t, startServer(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := c.Ping(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPingUnreachable(t *testing.T) {
	// grab a port and free it so nothing listens there
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	lis.Close()

	c := newClient(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	ok, err := c.Ping(ctx)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.False(t, client.IsPermanent(err), "unreachable coordinator is worth retrying")
}

func TestRegisterThenAdmit(t *testing.T) {
	c := newClient(t, startServer(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	granted, err := c.Admit(ctx, "job")
	require.NoError(t, err)
	assert.False(t, granted, "unregistered key must be denied")

	accepted, err := c.Register(ctx, "job", types.OperationConfig{MinInterval: time.Hour})
	require.NoError(t, err)
	assert.True(t, accepted)

	granted, err = c.Admit(ctx, "job")
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = c.Admit(ctx, "job")
	require.NoError(t, err)
	assert.False(t, granted, "second admission inside the interval must be denied")
}

func TestRegisterInvalid(t *testing.T) {
	c := newClient(t, startServer(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.Register(ctx, "", types.OperationConfig{MinInterval: time.Second})
	require.Error(t, err)
	assert.True(t, client.IsPermanent(err))

	_, err = c.Register(ctx, "neg", types.OperationConfig{MinInterval: -time.Second})
	require.Error(t, err)
	assert.True(t, client.IsPermanent(err))
}

// TestTwoClientsShareWindow tests that the window is enforced across callers
func TestTwoClientsShareWindow(t *testing.T) {
	addr := startServer(t)
	a := newClient(t, addr)
	b := newClient(t, addr)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := a.Register(ctx, "shared", types.OperationConfig{MinInterval: 200 * time.Millisecond})
	require.NoError(t, err)

	granted, err := a.Admit(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = b.Admit(ctx, "shared")
	require.NoError(t, err)
	assert.False(t, granted)

	time.Sleep(250 * time.Millisecond)

	granted, err = b.Admit(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, granted)
}
