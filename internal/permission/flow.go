// Package permission tracks the first-run setup sequence that gates the
// overlay: the host must grant "draw over other apps" and then "modify
// system settings" before setup is done.
package permission

import (
	"sync"

	"codeberg.org/mutker/boostctl/internal/logger"
)

type Step int

const (
	StepIntro Step = iota
	StepOverlay
	StepWriteSettings
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepIntro:
		return "intro"
	case StepOverlay:
		return "overlay"
	case StepWriteSettings:
		return "write_settings"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Checker reports the capabilities granted by the host platform.
type Checker interface {
	CanDrawOverlays() bool
	CanWriteSettings() bool
}

// Flow is the linear Intro -> Overlay -> WriteSettings -> Done sequence.
type Flow struct {
	mu      sync.Mutex
	step    Step
	checker Checker
	logger  logger.Logger
}

// NewFlow starts at Intro, or at Done when everything is already granted.
func NewFlow(checker Checker, log logger.Logger) *Flow {
	f := &Flow{
		step:    StepIntro,
		checker: checker,
		logger:  log,
	}
	if checker.CanDrawOverlays() && checker.CanWriteSettings() {
		f.step = StepDone
	}
	return f
}

func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Advance moves one step forward if the current step's capability is
// granted. Intro always advances; Done is terminal.
func (f *Flow) Advance() Step {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := f.step
	if f.satisfied(f.step) {
		f.step = next(f.step)
	}
	f.logTransition(prev)

	return f.step
}

// Recheck re-polls the host, typically when the app resumes from the
// system settings screen, and skips every step already granted.
func (f *Flow) Recheck() Step {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := f.step
	for (f.step == StepOverlay || f.step == StepWriteSettings) && f.satisfied(f.step) {
		f.step = next(f.step)
	}
	f.logTransition(prev)

	return f.step
}

func (f *Flow) satisfied(s Step) bool {
	switch s {
	case StepIntro:
		return true
	case StepOverlay:
		return f.checker.CanDrawOverlays()
	case StepWriteSettings:
		return f.checker.CanWriteSettings()
	default:
		return false
	}
}

func (f *Flow) logTransition(prev Step) {
	if prev == f.step {
		return
	}
	f.logger.Info().
		Str("from", prev.String()).
		Str("to", f.step.String()).
		Msg("Setup step changed")
}

func next(s Step) Step {
	if s >= StepDone {
		return StepDone
	}
	return s + 1
}

// Capabilities is the host-reported grant state.
type Capabilities struct {
	Overlay       bool `json:"overlay"`
	WriteSettings bool `json:"write_settings"`
}

// StaticChecker serves capabilities reported by the host.
type StaticChecker struct {
	mu   sync.RWMutex
	caps Capabilities
}

func NewStaticChecker(caps Capabilities) *StaticChecker {
	return &StaticChecker{caps: caps}
}

func (c *StaticChecker) Set(caps Capabilities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caps = caps
}

func (c *StaticChecker) Capabilities() Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.caps
}

func (c *StaticChecker) CanDrawOverlays() bool {
	return c.Capabilities().Overlay
}

func (c *StaticChecker) CanWriteSettings() bool {
	return c.Capabilities().WriteSettings
}
