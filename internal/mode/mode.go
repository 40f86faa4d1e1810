package mode

import (
	"strings"

	"codeberg.org/mutker/boostctl/internal/errors"
)

// Mode is a performance profile selecting which ranges bound the
// simulated metrics.
type Mode int

const (
	Saving Mode = iota + 1
	Balance
	Boost
)

// All lists every mode in display order.
var All = []Mode{Saving, Balance, Boost}

func (m Mode) String() string {
	switch m {
	case Saving:
		return "saving"
	case Balance:
		return "balance"
	case Boost:
		return "boost"
	default:
		return "unknown"
	}
}

// IsValid reports whether m is a member of the enumeration.
func (m Mode) IsValid() bool {
	switch m {
	case Saving, Balance, Boost:
		return true
	default:
		return false
	}
}

// OptimizationScore is the score the dashboard shows for the profile.
func (m Mode) OptimizationScore() int {
	switch m {
	case Saving:
		return 80
	case Boost:
		return 95
	default:
		return 72
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, errors.New().WithData(errors.ErrInvalidMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode parses a mode name, ignoring case and surrounding space.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "saving":
		return Saving, nil
	case "balance":
		return Balance, nil
	case "boost":
		return Boost, nil
	default:
		return 0, errors.New().WithData(errors.ErrInvalidMode, name)
	}
}
