package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/logger"
	"codeberg.org/mutker/boostctl/internal/mode"
)

const DefaultInterval = time.Second

// Snapshot is a read-only copy of a simulator's state. Mode is the mode
// whose ranges bound Values; it is zero for mode-independent sources.
type Snapshot struct {
	Source    string             `json:"source"`
	Mode      mode.Mode          `json:"-"`
	Tick      uint64             `json:"tick"`
	Timestamp time.Time          `json:"timestamp"`
	Values    map[Metric]float64 `json:"values"`
}

// Observer receives every post-tick snapshot.
type Observer interface {
	Observe(snapshot Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

func (f ObserverFunc) Observe(s Snapshot) { f(s) }

// LogObserver logs every snapshot at debug level.
func LogObserver(log logger.Logger) Observer {
	return ObserverFunc(func(s Snapshot) {
		event := log.Debug().
			Str("source", s.Source).
			Uint64("tick", s.Tick)
		if s.Mode.IsValid() {
			event = event.Str("mode", s.Mode.String())
		}
		for m, v := range s.Values {
			event = event.Float64(string(m), v)
		}
		event.Msg("Telemetry tick")
	})
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRandomSource replaces the default random source.
func WithRandomSource(r RandomSource) Option {
	return func(s *Simulator) {
		s.random = r
	}
}

// WithInterval sets the tick period used by Run.
func WithInterval(d time.Duration) Option {
	return func(s *Simulator) {
		s.interval = d
	}
}

// WithObserver registers o for post-tick snapshots.
func WithObserver(o Observer) Option {
	return func(s *Simulator) {
		s.observers = append(s.observers, o)
	}
}

// WithLogger sets the simulator's logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Simulator) {
		s.logger = l
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		s.now = now
	}
}

// Simulator advances a set of metrics by one bounded random step per tick.
type Simulator struct {
	name      string
	metrics   []Metric
	profile   Profile
	random    RandomSource
	interval  time.Duration
	observers []Observer
	logger    logger.Logger
	now       func() time.Time

	mu     sync.RWMutex
	mode   mode.Mode
	values map[Metric]float64
	ticks  uint64
	last   time.Time

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSimulator seeds a simulator with the given values. Seeds are clamped
// to the profile's current ranges so the bounds hold before the first tick.
func NewSimulator(name string, seed map[Metric]float64, profile Profile, opts ...Option) (*Simulator, error) {
	errFactory := errors.New()

	s := &Simulator{
		name:     name,
		profile:  profile,
		random:   NewRandomSource(time.Now().UnixNano()),
		interval: DefaultInterval,
		logger:   logger.Nop(),
		now:      time.Now,
		values:   make(map[Metric]float64, len(seed)),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.interval <= 0 {
		return nil, errFactory.WithData(ErrInvalidTick, s.interval.String())
	}

	m, table := profile()
	if err := table.Validate(); err != nil {
		return nil, err
	}

	for m, v := range seed {
		b, ok := table[m]
		if !ok {
			return nil, errFactory.WithData(ErrMissingBound, string(m))
		}
		s.values[m] = b.Range.Clamp(v)
		s.metrics = append(s.metrics, m)
	}
	sort.Slice(s.metrics, func(i, j int) bool { return s.metrics[i] < s.metrics[j] })

	s.mode = m
	s.last = s.now()

	return s, nil
}

func (s *Simulator) Name() string {
	return s.name
}

// Tick advances every metric once and returns the resulting snapshot.
func (s *Simulator) Tick() Snapshot {
	s.mu.Lock()
	current, table := s.profile()
	for _, m := range s.metrics {
		b := table[m]
		s.values[m] = Step(s.values[m], Delta(s.random(), b.StepScale), b.Range)
	}
	s.mode = current
	s.ticks++
	s.last = s.now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	for _, o := range s.observers {
		o.Observe(snap)
	}

	return snap
}

// Reclamp pins every metric to the profile's current ranges without
// stepping. It runs when the mode changes between ticks.
func (s *Simulator) Reclamp() {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, table := s.profile()
	for _, m := range s.metrics {
		s.values[m] = table[m].Range.Clamp(s.values[m])
	}
	s.mode = current
}

// Snapshot returns a copy of the current state.
func (s *Simulator) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Value returns the current value of m.
func (s *Simulator) Value(m Metric) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[m]
	return v, ok
}

func (s *Simulator) snapshotLocked() Snapshot {
	values := make(map[Metric]float64, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}

	return Snapshot{
		Source:    s.name,
		Mode:      s.mode,
		Tick:      s.ticks,
		Timestamp: s.last,
		Values:    values,
	}
}

// Run ticks every interval until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Debug().
		Str("simulator", s.name).
		Dur("interval", s.interval).
		Msg("Simulator started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Str("simulator", s.name).Msg("Simulator stopped")
			return nil
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Start runs the simulator in the background until Stop is called or
// ctx is cancelled.
func (s *Simulator) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.cancel != nil {
		return errors.New().WithData(ErrAlreadyRunning, s.name)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	return nil
}

// Stop cancels the timer and waits for the loop to exit. No tick fires
// after Stop returns. Calling Stop on a stopped simulator is a no-op.
func (s *Simulator) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.runMu.Unlock()

	if done == nil {
		return
	}
	// done stays set so concurrent callers also wait for the loop to exit.
	if cancel != nil {
		cancel()
	}
	<-done
}

// Running reports whether Start has been called without a matching Stop.
func (s *Simulator) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.cancel != nil
}
