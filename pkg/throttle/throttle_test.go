package throttle

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pixperk/throttled/pkg/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fetchSomething() (int, error) { return 42, nil }

func joinedNode(t *testing.T) *node.Node {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := lis.Addr().(*net.TCPAddr).Port
	lis.Close()

	n, err := node.NewNode(node.Config{
		Ports:    []int{port},
		LockPath: filepath.Join(t.TempDir(), "throttle.lock"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { n.Shutdown() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, n.Join(ctx))
	return n
}

func TestKey(t *testing.T) {
	key := Key(fetchSomething)
	assert.True(t, strings.HasSuffix(key, "throttle.fetchSomething"), key)
	assert.Equal(t, key, Key(fetchSomething), "key must be stable")

	assert.Empty(t, Key(nil))
	assert.Empty(t, Key(42))

	var nilFn func()
	assert.Empty(t, Key(nilFn))
}

func TestWrap(t *testing.T) {
	n := joinedNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fetch, err := Wrap(ctx, n, Key(fetchSomething), 100*time.Millisecond, fetchSomething)
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		got, err := fetch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 42, got)
	}
	assert.GreaterOrEqual(t, time.Since(start), 190*time.Millisecond, "three calls span two intervals")
}

func TestWrapInvalidKey(t *testing.T) {
	n := joinedNode(t)

	_, err := Wrap(context.Background(), n, "", time.Second, fetchSomething)
	assert.Error(t, err)
}
