package history

import (
	"context"
	"time"

	"codeberg.org/mutker/boostctl/internal/telemetry"
)

// Recorder persists simulator snapshots.
type Recorder interface {
	telemetry.Observer
	Record(ctx context.Context, snapshot telemetry.Snapshot) error
	Query(ctx context.Context, since time.Time, source string) ([]Sample, error)
	Session() string
	Enabled() bool
	Close() error
}

// Repository defines the interface for history data storage
type Repository interface {
	Store(samples []Sample) error
	Query(ctx context.Context, since time.Time, source string) ([]Sample, error)
	Close() error
}

// Sample is one metric value at one tick.
type Sample struct {
	Session   string    `json:"session"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Mode      string    `json:"mode,omitempty"`
	Tick      uint64    `json:"tick"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
}
