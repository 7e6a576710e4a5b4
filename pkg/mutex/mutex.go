package mutex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pixperk/throttled/pkg/metrics"
	"github.com/pixperk/throttled/pkg/types"
)

const (
	DefaultExpiry       = 5 * time.Second
	DefaultPollInterval = 10 * time.Millisecond

	verifyReads = 10
	verifyPause = time.Millisecond
)

// file based optimistic lock shared by processes on one host
// a claim is a write followed by a stability check: the holder re-reads the
// record verifyReads times and concedes as soon as another value shows up.
// this is not linearizable, it only holds while competing writes are rare
// compared to the verification window
type Mutex struct {
	path         string
	expiry       time.Duration
	pollInterval time.Duration
	logger       hclog.Logger
	now          func() time.Time
	readFile     func(string) ([]byte, error)
	afterWrite   func() // runs between the claim write and its verification

	mu   sync.Mutex
	held string // record value we wrote, empty when not held
}

type Config struct {
	Path         string        //shared record location
	Expiry       time.Duration //age after which a record is abandoned
	PollInterval time.Duration //pause between contended attempts
	Logger       hclog.Logger
}

func New(cfg Config) *Mutex {
	m := &Mutex{
		path:         cfg.Path,
		expiry:       cfg.Expiry,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
		now:          time.Now,
		readFile:     os.ReadFile,
	}
	if m.expiry <= 0 {
		m.expiry = DefaultExpiry
	}
	if m.pollInterval <= 0 {
		m.pollInterval = DefaultPollInterval
	}
	if m.logger == nil {
		m.logger = hclog.NewNullLogger()
	}
	return m
}

func (m *Mutex) Path() string {
	return m.path
}

// single non-blocking attempt
func (m *Mutex) TryAcquire() (bool, error) {
	return m.Acquire(context.Background(), false, 0)
}

// acquires the lock
// timeout of zero means no timeout; a non-blocking call cannot have one
// returns false when the lock is busy (non-blocking), the timeout elapsed
// or ctx was cancelled
func (m *Mutex) Acquire(ctx context.Context, blocking bool, timeout time.Duration) (bool, error) {
	if !blocking && timeout > 0 {
		return false, types.ErrNonBlockingTimeout
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if m.isFree() {
			won, err := m.claim()
			if err != nil {
				return false, err
			}
			if won {
				metrics.MutexAcquireTotal.WithLabelValues("acquired").Inc()
				return true, nil
			}
			metrics.MutexAcquireTotal.WithLabelValues("lost").Inc()
		}

		if !blocking {
			metrics.MutexAcquireTotal.WithLabelValues("busy").Inc()
			return false, nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			metrics.MutexAcquireTotal.WithLabelValues("busy").Inc()
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
}

// reports whether the record can be claimed
// absent, corrupt and expired records all count as free; a present one is
// removed here so the claim does not race against garbage
func (m *Mutex) isFree() bool {
	data, err := m.readFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	if err != nil {
		m.logger.Debug("unreadable lock record, treating as free", "path", m.path, "error", err)
		m.discard()
		return true
	}

	s, ok := parseStamp(string(data))
	if !ok {
		m.logger.Debug("corrupt lock record, treating as free", "path", m.path)
		m.discard()
		return true
	}

	if m.now().Sub(s.Time()) > m.expiry {
		m.logger.Info("reclaiming stale lock record", "path", m.path, "age", m.now().Sub(s.Time()))
		m.discard()
		return true
	}

	return false
}

func (m *Mutex) discard() {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("failed to remove lock record", "path", m.path, "error", err)
	}
}

// writes a fresh stamp and checks nobody overwrote it
func (m *Mutex) claim() (bool, error) {
	value := newStamp(m.now()).String()

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return false, fmt.Errorf("create lock dir: %w", err)
	}
	if err := os.WriteFile(m.path, []byte(value), 0644); err != nil {
		return false, fmt.Errorf("write lock record: %w", err)
	}
	if m.afterWrite != nil {
		m.afterWrite()
	}

	for i := 0; i < verifyReads; i++ {
		time.Sleep(verifyPause)

		data, err := m.readFile(m.path)
		if err != nil {
			//transient, the next read decides
			continue
		}
		if string(data) != value {
			//someone else wrote after us, their value stays
			return false, nil
		}
	}

	m.mu.Lock()
	m.held = value
	m.mu.Unlock()

	return true, nil
}

// reports whether this instance believes it holds the lock
func (m *Mutex) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held != ""
}

// releases the lock
// fails when the lock was never acquired or the record no longer carries
// our value, in which case the record is left alone
func (m *Mutex) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held == "" {
		return types.ErrLockNotHeld
	}

	value := m.held
	m.held = ""

	data, err := m.readFile(m.path)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrLockOwnershipLost, err)
	}
	if string(data) != value {
		return fmt.Errorf("%w: record holds %q, we wrote %q", types.ErrLockOwnershipLost, string(data), value)
	}

	if err := os.Remove(m.path); err != nil {
		return fmt.Errorf("remove lock record: %w", err)
	}

	return nil
}

// runs fn while holding the lock and releases on every exit path
// including panics; a release failure is returned if fn succeeded
func (m *Mutex) Do(ctx context.Context, timeout time.Duration, fn func() error) (err error) {
	ok, err := m.Acquire(ctx, true, timeout)
	if err != nil {
		return err
	}
	if !ok {
		return types.ErrLockTimeout
	}

	defer func() {
		if rerr := m.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	return fn()
}
