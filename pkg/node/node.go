package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pixperk/throttled/pkg/client"
	"github.com/pixperk/throttled/pkg/metrics"
	"github.com/pixperk/throttled/pkg/mutex"
	"github.com/pixperk/throttled/pkg/policy"
	"github.com/pixperk/throttled/pkg/server"
	"github.com/pixperk/throttled/pkg/storage"
	"github.com/pixperk/throttled/pkg/types"
)

const (
	DefaultJoinAttempts   = 5
	DefaultJoinRetryDelay = time.Second
	DefaultPingTimeout    = 500 * time.Millisecond
	DefaultPollInterval   = 10 * time.Millisecond
)

type Config struct {
	NodeID         uuid.UUID     //generated when nil
	Host           string        //host the coordinator binds and participants dial
	Ports          []int         //candidate coordinator ports, tried in order
	LockPath       string        //shared election lock record
	LockExpiry     time.Duration //staleness window of the lock record
	PollInterval   time.Duration //admission polling cadence
	JoinAttempts   int           //join attempts before giving up
	JoinRetryDelay time.Duration //pause after a lost election
	PingTimeout    time.Duration //per port discovery ping timeout
	DataDir        string        //registry journal, empty disables it
	Logger         hclog.Logger
}

// one per process
// joins the throttle group as coordinator or participant and routes
// admission requests to whichever node coordinates
type Node struct {
	id     uuid.UUID
	cfg    Config
	logger hclog.Logger
	mutex  *mutex.Mutex

	mu          sync.RWMutex
	role        types.Role
	coordinator string
	client      *client.Client

	//coordinator only
	policy  *policy.Controller
	server  *server.Server
	journal *storage.BoltDBJournal
}

func NewNode(cfg Config) (*Node, error) {
	if len(cfg.Ports) == 0 {
		return nil, errors.New("at least one candidate port is required")
	}
	for _, p := range cfg.Ports {
		if p <= 0 || p > 65535 {
			return nil, fmt.Errorf("invalid candidate port %d", p)
		}
	}
	if cfg.LockPath == "" {
		return nil, errors.New("lock path is required")
	}

	if cfg.NodeID == uuid.Nil {
		cfg.NodeID = uuid.New()
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.JoinAttempts <= 0 {
		cfg.JoinAttempts = DefaultJoinAttempts
	}
	if cfg.JoinRetryDelay <= 0 {
		cfg.JoinRetryDelay = DefaultJoinRetryDelay
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = DefaultPingTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	logger := cfg.Logger.With("node_id", cfg.NodeID.String())

	return &Node{
		id:     cfg.NodeID,
		cfg:    cfg,
		logger: logger,
		mutex: mutex.New(mutex.Config{
			Path:         cfg.LockPath,
			Expiry:       cfg.LockExpiry,
			PollInterval: cfg.PollInterval,
			Logger:       logger.Named("mutex"),
		}),
	}, nil
}

// runs discovery then election until a role is resolved
// a lost election waits JoinRetryDelay and starts over from discovery;
// running out of attempts returns ErrJoinExhausted and the node stays
// unresolved
func (n *Node) Join(ctx context.Context) error {
	if n.Role() != types.RoleUnresolved {
		return nil
	}

	for attempt := 1; attempt <= n.cfg.JoinAttempts; attempt++ {
		metrics.JoinAttemptsTotal.Inc()

		if addr, ok := n.discover(ctx); ok {
			return n.becomeParticipant(addr)
		}

		won, err := n.mutex.TryAcquire()
		switch {
		case err != nil:
			n.logger.Warn("election attempt failed", "attempt", attempt, "error", err)
		case won:
			err := n.becomeCoordinator()
			if err == nil {
				return nil
			}
			n.logger.Error("won election but could not serve", "attempt", attempt, "error", err)
			if rerr := n.mutex.Release(); rerr != nil {
				n.logger.Warn("failed to release election lock", "error", rerr)
			}
		default:
			n.logger.Debug("election lost", "attempt", attempt)
		}

		if attempt == n.cfg.JoinAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(n.cfg.JoinRetryDelay):
		}
	}

	return fmt.Errorf("%w: %d attempts", types.ErrJoinExhausted, n.cfg.JoinAttempts)
}

// pings candidate ports in order, first answer wins
func (n *Node) discover(ctx context.Context) (string, bool) {
	for _, port := range n.cfg.Ports {
		addr := n.addr(port)
		if n.answers(ctx, addr) {
			return addr, true
		}
	}
	return "", false
}

// a fresh connection per ping, so no reconnect backoff survives
// from an earlier attempt against the same port
func (n *Node) answers(ctx context.Context, addr string) bool {
	c, err := client.NewClient(addr)
	if err != nil {
		return false
	}
	defer c.Close()

	pingCtx, cancel := context.WithTimeout(ctx, n.cfg.PingTimeout)
	defer cancel()

	ok, err := c.Ping(pingCtx)
	if err != nil {
		n.logger.Trace("no coordinator", "addr", addr, "error", err)
		return false
	}
	return ok
}

func (n *Node) becomeParticipant(addr string) error {
	c, err := client.NewClient(addr)
	if err != nil {
		return fmt.Errorf("connect to coordinator: %w", err)
	}

	n.mu.Lock()
	n.role = types.RoleParticipant
	n.coordinator = addr
	n.client = c
	n.mu.Unlock()

	metrics.IsCoordinator.Set(0)
	n.logger.Info("joined as participant", "coordinator", addr)
	return nil
}

// starts the admission server on the first candidate port that binds
// the election lock stays held for the rest of the process lifetime
func (n *Node) becomeCoordinator() error {
	var journal *storage.BoltDBJournal
	opts := []policy.Option{policy.WithLogger(n.logger.Named("policy"))}
	if n.cfg.DataDir != "" {
		j, err := storage.NewBoltDBJournal(n.cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		journal = j
		opts = append(opts, policy.WithJournal(j))
	}

	ctl := policy.NewController(opts...)
	if err := ctl.Restore(); err != nil {
		n.logger.Warn("ignoring unreadable journal", "error", err)
	}

	lis, err := n.listen()
	if err != nil {
		if journal != nil {
			journal.Close()
		}
		return err
	}
	addr := lis.Addr().String()

	srv := server.NewServer(ctl, n.logger.Named("server"))
	go func() {
		if err := srv.Serve(lis); err != nil {
			n.logger.Error("admission server stopped", "error", err)
		}
	}()

	//the coordinator talks to itself through the same stub as everyone else
	c, err := client.NewClient(addr)
	if err != nil {
		srv.Stop()
		if journal != nil {
			journal.Close()
		}
		return fmt.Errorf("connect to self: %w", err)
	}

	n.mu.Lock()
	n.role = types.RoleCoordinator
	n.coordinator = addr
	n.client = c
	n.policy = ctl
	n.server = srv
	n.journal = journal
	n.mu.Unlock()

	metrics.IsCoordinator.Set(1)
	n.logger.Info("elected coordinator", "addr", addr)
	return nil
}

func (n *Node) listen() (net.Listener, error) {
	var lastErr error
	for _, port := range n.cfg.Ports {
		lis, err := net.Listen("tcp", n.addr(port))
		if err == nil {
			return lis, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no candidate port available: %w", lastErr)
}

func (n *Node) addr(port int) string {
	return net.JoinHostPort(n.cfg.Host, strconv.Itoa(port))
}

func (n *Node) ID() uuid.UUID {
	return n.id
}

func (n *Node) Role() types.Role {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.role
}

// returns true if this node makes admission decisions
func (n *Node) IsCoordinator() bool {
	return n.Role() == types.RoleCoordinator
}

// returns the coordinator's address, empty before join
func (n *Node) GetCoordinator() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.coordinator
}

func (n *Node) stub() (*client.Client, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.client == nil {
		return nil, types.ErrNotJoined
	}
	return n.client, nil
}

type Status struct {
	NodeID      string        `json:"node_id"`
	Role        string        `json:"role"`
	Coordinator string        `json:"coordinator,omitempty"`
	Policy      *policy.Stats `json:"policy,omitempty"`
}

func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()

	st := Status{
		NodeID:      n.id.String(),
		Role:        n.role.String(),
		Coordinator: n.coordinator,
	}
	if n.policy != nil {
		stats := n.policy.Stats()
		st.Policy = &stats
	}
	return st
}

// stops serving and closes connections
// the election lock is not released; the record ages out after its
// staleness window and a later election reclaims it
func (n *Node) Shutdown() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var errs []error
	if n.server != nil {
		n.server.Stop()
		n.server = nil
	}
	if n.client != nil {
		errs = append(errs, n.client.Close())
		n.client = nil
	}
	if n.journal != nil {
		errs = append(errs, n.journal.Close())
		n.journal = nil
	}
	return errors.Join(errs...)
}
