package history

import (
	"context"
	"sort"
	"time"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/logger"
	"codeberg.org/mutker/boostctl/internal/telemetry"
	"github.com/google/uuid"
)

type service struct {
	repo    Repository
	cfg     Config
	session string
	logger  logger.Logger
}

// No-op implementation
type noopRecorder struct {
	session string
}

// NewRecorder returns a SQLite-backed recorder, or a no-op recorder when
// history is disabled.
func NewRecorder(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	session := uuid.NewString()

	if !cfg.Enabled {
		log.Debug().Msg("History disabled, using no-op recorder")
		return &noopRecorder{session: session}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Str("session", session).
		Msg("History recorder initialized")

	return newService(repo, cfg, session, log), nil
}

func newService(repo Repository, cfg Config, session string, log logger.Logger) *service {
	return &service{
		repo:    repo,
		cfg:     cfg,
		session: session,
		logger:  log,
	}
}

func (s *service) Record(ctx context.Context, snapshot telemetry.Snapshot) error {
	errFactory := errors.New()

	if snapshot.Source == "" || len(snapshot.Values) == 0 {
		return errFactory.New(ErrInvalidSnapshot)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	return s.repo.Store(s.samples(snapshot))
}

// Observe records a snapshot from a simulator tick. Failures are logged,
// never propagated into the tick.
func (s *service) Observe(snapshot telemetry.Snapshot) {
	if err := s.Record(context.Background(), snapshot); err != nil {
		var coded errors.Error
		if errors.As(err, &coded) {
			s.logger.ErrorWithCode(coded).Str("source", snapshot.Source).Msg("Failed to record snapshot")
			return
		}
		s.logger.Error().Err(err).Str("source", snapshot.Source).Msg("Failed to record snapshot")
	}
}

func (s *service) samples(snapshot telemetry.Snapshot) []Sample {
	metrics := make([]string, 0, len(snapshot.Values))
	for m := range snapshot.Values {
		metrics = append(metrics, string(m))
	}
	sort.Strings(metrics)

	var modeName string
	if snapshot.Mode.IsValid() {
		modeName = snapshot.Mode.String()
	}

	ts := snapshot.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	out := make([]Sample, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, Sample{
			Session:   s.session,
			Timestamp: ts,
			Source:    snapshot.Source,
			Mode:      modeName,
			Tick:      snapshot.Tick,
			Metric:    m,
			Value:     snapshot.Values[telemetry.Metric(m)],
		})
	}
	return out
}

func (s *service) Query(ctx context.Context, since time.Time, source string) ([]Sample, error) {
	return s.repo.Query(ctx, since, source)
}

func (s *service) Session() string {
	return s.session
}

func (*service) Enabled() bool {
	return true
}

func (s *service) Close() error {
	errFactory := errors.New()

	if err := s.repo.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}
	return nil
}

func (*noopRecorder) Record(_ context.Context, _ telemetry.Snapshot) error {
	return nil
}

func (*noopRecorder) Observe(_ telemetry.Snapshot) {}

func (*noopRecorder) Query(_ context.Context, _ time.Time, _ string) ([]Sample, error) {
	return nil, errors.New().New(ErrDisabled)
}

func (n *noopRecorder) Session() string {
	return n.session
}

func (*noopRecorder) Enabled() bool {
	return false
}

func (*noopRecorder) Close() error {
	return nil
}
