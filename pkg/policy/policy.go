package policy

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/pixperk/throttled/pkg/metrics"
	"github.com/pixperk/throttled/pkg/time"
	"github.com/pixperk/throttled/pkg/types"
)

// persists registrations so a new coordinator starts with known keys
type Journal interface {
	SaveOperation(key string, cfg types.OperationConfig) error
	LoadOperations() (map[string]types.OperationConfig, error)
}

type entry struct {
	config types.OperationConfig
	state  types.AdmissionState
}

// decides admissions for every registered key
// critical :
// - check-and-update of a key's state happens under mu, so two concurrent
//   requests can never both be granted inside one interval
// - unknown keys are denied, never created implicitly
// - journalMu orders registrations so the last journal write matches memory
type Controller struct {
	mu        sync.Mutex
	journalMu sync.Mutex

	entries map[string]*entry

	grants  uint64
	denials uint64

	clock   time.Clock
	journal Journal
	logger  hclog.Logger
}

type Option func(*Controller)

func WithClock(c time.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

func WithJournal(j Journal) Option {
	return func(ctl *Controller) { ctl.journal = j }
}

func WithLogger(l hclog.Logger) Option {
	return func(ctl *Controller) { ctl.logger = l }
}

func NewController(opts ...Option) *Controller {
	ctl := &Controller{
		entries: make(map[string]*entry),
		clock:   time.NewClock(),
		logger:  hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(ctl)
	}
	return ctl
}

// loads journaled registrations, admission state always starts at never
func (c *Controller) Restore() error {
	if c.journal == nil {
		return nil
	}

	ops, err := c.journal.LoadOperations()
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, cfg := range ops {
		if _, exists := c.entries[key]; exists {
			continue
		}
		c.entries[key] = &entry{config: cfg}
	}
	metrics.RegisteredKeys.Set(float64(len(c.entries)))
	c.logger.Info("restored registrations", "count", len(ops))

	return nil
}

// applies a command and returns the result or error
func (c *Controller) Apply(cmd types.Command) (any, error) {
	switch cm := cmd.(type) {
	case types.RegisterCmd:
		return c.applyRegister(cm)
	case types.AdmitCmd:
		return c.applyAdmit(cm)
	default:
		return nil, fmt.Errorf("unknown command type: %T", cmd)
	}
}

// returned when a key is registered
type RegisterResponse struct {
	Accepted bool
}

func (c *Controller) applyRegister(cmd types.RegisterCmd) (any, error) {
	if cmd.Key == "" {
		return nil, types.ErrEmptyKey
	}
	if err := cmd.Config.Validate(); err != nil {
		return nil, err
	}

	// held across the journal write, admissions only take mu
	c.journalMu.Lock()
	defer c.journalMu.Unlock()

	c.mu.Lock()
	e, exists := c.entries[cmd.Key]
	if exists {
		//overwrite config, keep admission history
		e.config = cmd.Config
	} else {
		c.entries[cmd.Key] = &entry{config: cmd.Config}
	}
	count := len(c.entries)
	c.mu.Unlock()

	metrics.RegisterTotal.Inc()
	metrics.RegisteredKeys.Set(float64(count))

	if c.journal != nil {
		if err := c.journal.SaveOperation(cmd.Key, cmd.Config); err != nil {
			c.logger.Warn("journal write failed", "key", cmd.Key, "error", err)
		}
	}

	return RegisterResponse{Accepted: true}, nil
}

// returned for every admission request
type AdmitResponse struct {
	Granted bool
}

func (c *Controller) applyAdmit(cmd types.AdmitCmd) (any, error) {
	c.mu.Lock()
	granted := false
	e, exists := c.entries[cmd.Key]
	if exists {
		now := c.clock.Elapsed()
		if e.state.Ready(now, e.config) {
			e.state.Admitted = true
			e.state.LastAdmittedAt = now
			granted = true
		}
	}
	if granted {
		c.grants++
	} else {
		c.denials++
	}
	c.mu.Unlock()

	label, status := cmd.Key, "denied"
	if granted {
		status = "granted"
	} else if !exists {
		label, status = metrics.UnregisteredKey, "unknown"
	}
	metrics.AdmissionTotal.WithLabelValues(label, status).Inc()

	return AdmitResponse{Granted: granted}, nil
}

// returns the config registered for key
func (c *Controller) GetConfig(key string) (types.OperationConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists {
		return types.OperationConfig{}, false
	}
	return e.config, true
}

// current policy stats
type Stats struct {
	Keys    int    `json:"keys"`
	Grants  uint64 `json:"grants"`
	Denials uint64 `json:"denials"`
}

func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Keys:    len(c.entries),
		Grants:  c.grants,
		Denials: c.denials,
	}
}
