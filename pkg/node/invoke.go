package node

import (
	"context"
	"time"

	"github.com/pixperk/throttled/pkg/client"
	"github.com/pixperk/throttled/pkg/metrics"
	"github.com/pixperk/throttled/pkg/types"
)

// registers key with the coordinator, last registration wins
// transport failures are retried every PollInterval until ctx is done
func (n *Node) RegisterOperation(ctx context.Context, key string, cfg types.OperationConfig) (bool, error) {
	if key == "" {
		return false, types.ErrEmptyKey
	}
	if err := cfg.Validate(); err != nil {
		return false, err
	}

	c, err := n.stub()
	if err != nil {
		return false, err
	}

	var failureCount int
	for {
		accepted, err := c.Register(ctx, key, cfg)
		if err == nil {
			if failureCount > 0 {
				n.logger.Info("coordinator reachable again", "op", "register", "failures", failureCount)
			}
			n.logger.Debug("operation registered", "key", key, "min_interval", cfg.MinInterval, "accepted", accepted)
			return accepted, nil
		}
		if client.IsPermanent(err) {
			return false, err
		}

		failureCount++
		metrics.TransportErrorsTotal.WithLabelValues("register").Inc()
		if failureCount == 1 {
			n.logger.Warn("register failed, retrying", "key", key, "error", err)
		}

		if err := n.pause(ctx); err != nil {
			return false, err
		}
	}
}

// waits until the coordinator admits key, then runs call locally
// polls every PollInterval until granted; transport errors are retried,
// rejected requests are returned as-is. cancel ctx to abandon the wait
func Invoke[T any](ctx context.Context, n *Node, key string, call func() (T, error)) (T, error) {
	var zero T
	if err := n.awaitAdmission(ctx, key); err != nil {
		return zero, err
	}
	return call()
}

// non-generic form of Invoke
func (n *Node) Do(ctx context.Context, key string, call func() error) error {
	if err := n.awaitAdmission(ctx, key); err != nil {
		return err
	}
	return call()
}

// asks the coordinator once, without waiting or retrying
func (n *Node) TryAdmit(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, types.ErrEmptyKey
	}
	c, err := n.stub()
	if err != nil {
		return false, err
	}
	return c.Admit(ctx, key)
}

func (n *Node) awaitAdmission(ctx context.Context, key string) error {
	if key == "" {
		return types.ErrEmptyKey
	}

	c, err := n.stub()
	if err != nil {
		return err
	}

	start := time.Now()
	var failureCount int

	for {
		granted, err := c.Admit(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if client.IsPermanent(err) {
				return err
			}
			failureCount++
			metrics.TransportErrorsTotal.WithLabelValues("admit").Inc()
			if failureCount == 1 {
				n.logger.Warn("admission request failed, retrying", "key", key, "error", err)
			}
		} else {
			if failureCount > 0 {
				n.logger.Info("coordinator reachable again", "op", "admit", "failures", failureCount)
				failureCount = 0
			}
			if granted {
				metrics.AdmissionWaitDuration.Observe(time.Since(start).Seconds())
				return nil
			}
		}

		if err := n.pause(ctx); err != nil {
			return err
		}
	}
}

func (n *Node) pause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(n.cfg.PollInterval):
		return nil
	}
}
