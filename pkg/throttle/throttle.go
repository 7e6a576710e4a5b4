// Package throttle marks functions as throttled through a joined node.
//
//	fetch, err := throttle.Wrap(ctx, n, throttle.Key(fetchPage), time.Second,
//		func() (*Page, error) { return fetchPage(url) })
//	page, err := fetch(ctx)
//
// Registration happens once in Wrap; every call of the returned function
// waits for the coordinator's admission and then runs locally.
package throttle

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"time"

	"github.com/pixperk/throttled/pkg/node"
	"github.com/pixperk/throttled/pkg/types"
)

type Func[T any] func(ctx context.Context) (T, error)

// derives a stable key from fn's qualified name
func Key(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return ""
	}
	return f.Name()
}

// registers key with minInterval and returns fn gated by admission
func Wrap[T any](ctx context.Context, n *node.Node, key string, minInterval time.Duration, fn func() (T, error)) (Func[T], error) {
	accepted, err := n.RegisterOperation(ctx, key, types.OperationConfig{MinInterval: minInterval})
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", key, err)
	}
	if !accepted {
		return nil, fmt.Errorf("register %s: rejected by coordinator", key)
	}

	return func(ctx context.Context) (T, error) {
		return node.Invoke(ctx, n, key, fn)
	}, nil
}
