package mode

import (
	"sync"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/logger"
)

// Reader exposes the current mode.
type Reader interface {
	Mode() Mode
}

// Listener is called after a successful mode change.
type Listener func(prev, next Mode)

// Controller holds the single current mode.
type Controller struct {
	mu        sync.RWMutex
	current   Mode
	listeners []Listener
	logger    logger.Logger
}

func NewController(initial Mode, log logger.Logger) (*Controller, error) {
	if !initial.IsValid() {
		return nil, errors.New().WithData(errors.ErrInvalidArgument, "unknown mode")
	}

	return &Controller{
		current: initial,
		logger:  log,
	}, nil
}

func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// SetMode replaces the current mode. Values outside the enumeration are
// rejected and leave the current mode untouched.
func (c *Controller) SetMode(next Mode) error {
	if !next.IsValid() {
		return errors.New().WithData(errors.ErrInvalidArgument, "unknown mode")
	}

	c.mu.Lock()
	prev := c.current
	c.current = next
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	c.logger.Info().
		Str("from", prev.String()).
		Str("to", next.String()).
		Int("optimization_score", next.OptimizationScore()).
		Msg("Performance mode changed")

	for _, fn := range listeners {
		fn(prev, next)
	}

	return nil
}

// Subscribe registers fn for every subsequent mode change.
func (c *Controller) Subscribe(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}
