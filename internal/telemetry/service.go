package telemetry

import (
	"context"
	"time"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/logger"
	"codeberg.org/mutker/boostctl/internal/mode"
	"golang.org/x/sync/errgroup"
)

const (
	SourcePrimary = "primary"
	SourceNetwork = "network"
	SourceThermal = "thermal"

	DefaultNetworkInterval = 2 * time.Second
	DefaultThermalInterval = 3 * time.Second
)

// ModeSource is the part of the mode controller the service depends on.
type ModeSource interface {
	mode.Reader
	Subscribe(fn mode.Listener)
}

type Config struct {
	Interval        time.Duration
	NetworkInterval time.Duration
	ThermalInterval time.Duration
	// Seed fixes the random sources; zero seeds from the clock.
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		Interval:        DefaultInterval,
		NetworkInterval: DefaultNetworkInterval,
		ThermalInterval: DefaultThermalInterval,
	}
}

// Service owns the primary, network and thermal simulators.
type Service struct {
	Primary *Simulator
	Network *Simulator
	Thermal *Simulator

	logger logger.Logger
}

// NewService builds the three simulators. The primary simulator follows
// modes and re-clamps as soon as the mode changes.
func NewService(cfg Config, modes ModeSource, log logger.Logger, observers ...Observer) (*Service, error) {
	errFactory := errors.New()

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	common := func(offset int64, interval time.Duration) []Option {
		opts := []Option{
			WithRandomSource(NewRandomSource(seed + offset)),
			WithInterval(interval),
			WithLogger(log),
		}
		for _, o := range observers {
			opts = append(opts, WithObserver(o))
		}
		return opts
	}

	primary, err := NewSimulator(SourcePrimary, PrimarySeed, ModeProfile(modes), common(0, cfg.Interval)...)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitSim, err)
	}

	network, err := NewSimulator(SourceNetwork, NetworkSeed, StaticProfile(networkTable), common(1, cfg.NetworkInterval)...)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitSim, err)
	}

	thermal, err := NewSimulator(SourceThermal, ThermalSeed, StaticProfile(thermalTable), common(2, cfg.ThermalInterval)...)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitSim, err)
	}

	modes.Subscribe(func(_, _ mode.Mode) {
		primary.Reclamp()
	})

	return &Service{
		Primary: primary,
		Network: network,
		Thermal: thermal,
		logger:  log,
	}, nil
}

// Simulators lists every simulator the service owns.
func (s *Service) Simulators() []*Simulator {
	return []*Simulator{s.Primary, s.Network, s.Thermal}
}

// Run drives every simulator until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, sim := range s.Simulators() {
		sim := sim
		g.Go(func() error {
			return sim.Run(gCtx)
		})
	}

	s.logger.Info().Msg("Telemetry simulators running")

	return g.Wait()
}
