package telemetry

import (
	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/mode"
)

// Metric names a simulated telemetry value.
type Metric string

const (
	CPU         Metric = "cpu"
	RAM         Metric = "ram"
	FPS         Metric = "fps"
	GPU         Metric = "gpu"
	Ping        Metric = "ping"
	Temperature Metric = "temperature"
)

// Range is a closed interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp pins x to the nearest boundary when it falls outside r.
func (r Range) Clamp(x float64) float64 {
	return max(r.Min, min(r.Max, x))
}

func (r Range) Contains(x float64) bool {
	return x >= r.Min && x <= r.Max
}

// Bound pairs a metric's legal range with its step amplitude.
type Bound struct {
	Range     Range   `json:"range"`
	StepScale float64 `json:"step_scale"`
}

// Table maps metrics to their bounds.
type Table map[Metric]Bound

// Validate rejects inverted ranges and negative step scales.
func (t Table) Validate() error {
	for m, b := range t {
		if b.Range.Min > b.Range.Max || b.StepScale < 0 {
			return errors.New().WithData(ErrInvalidRange, string(m))
		}
	}
	return nil
}

var modeTables = map[mode.Mode]Table{
	mode.Saving: {
		CPU: {Range{20, 50}, 6},
		RAM: {Range{30, 55}, 5},
		FPS: {Range{30, 45}, 3},
		GPU: {Range{15, 40}, 5},
	},
	mode.Balance: {
		CPU: {Range{30, 70}, 10},
		RAM: {Range{40, 75}, 8},
		FPS: {Range{50, 75}, 5},
		GPU: {Range{25, 60}, 8},
	},
	mode.Boost: {
		CPU: {Range{20, 40}, 5},
		RAM: {Range{30, 50}, 4},
		FPS: {Range{100, 144}, 3},
		GPU: {Range{15, 35}, 4},
	},
}

var (
	networkTable = Table{
		Ping: {Range{50, 150}, 20},
	}
	thermalTable = Table{
		Temperature: {Range{25.0, 35.0}, 1.5},
	}
)

// Seed values shown before the first tick.
var (
	PrimarySeed = map[Metric]float64{CPU: 45, RAM: 62, FPS: 60, GPU: 38}
	NetworkSeed = map[Metric]float64{Ping: 80}
	ThermalSeed = map[Metric]float64{Temperature: 30}
)

// ModeTable returns a copy of the bounds for m.
func ModeTable(m mode.Mode) (Table, error) {
	t, ok := modeTables[m]
	if !ok {
		return nil, errors.New().WithData(errors.ErrInvalidMode, m.String())
	}
	return t.clone(), nil
}

// NetworkTable returns the static bounds for ping.
func NetworkTable() Table {
	return networkTable.clone()
}

// ThermalTable returns the static bounds for temperature.
func ThermalTable() Table {
	return thermalTable.clone()
}

func (t Table) clone() Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Profile supplies the bounds in force for the next tick together with
// the mode they belong to. Mode-independent profiles return the zero Mode.
type Profile func() (mode.Mode, Table)

// ModeProfile reads the active mode from r on every call.
func ModeProfile(r mode.Reader) Profile {
	return func() (mode.Mode, Table) {
		m := r.Mode()
		return m, modeTables[m]
	}
}

// FixedModeProfile always returns t, tagged with m.
func FixedModeProfile(m mode.Mode, t Table) Profile {
	t = t.clone()
	return func() (mode.Mode, Table) {
		return m, t
	}
}

// StaticProfile always returns t.
func StaticProfile(t Table) Profile {
	return FixedModeProfile(0, t)
}
