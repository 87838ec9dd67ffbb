package timer

import (
	"fmt"
	"strings"
)

// Lane selects which per-frame tick source advances a timer.
type Lane int

const (
	// LaneNormal is advanced with scaled frame time.
	LaneNormal Lane = iota
	// LaneFixed is advanced with the fixed physics step.
	LaneFixed
	// LaneUnscaled is advanced with wall frame time, ignoring time scale and pause.
	LaneUnscaled
)

// Lanes lists every lane in driver order.
var Lanes = []Lane{LaneFixed, LaneNormal, LaneUnscaled}

func (l Lane) String() string {
	switch l {
	case LaneNormal:
		return "normal"
	case LaneFixed:
		return "fixed"
	case LaneUnscaled:
		return "unscaled"
	default:
		return fmt.Sprintf("lane(%d)", int(l))
	}
}

// ParseLane parses a lane name. The empty string yields LaneNormal.
func ParseLane(s string) (Lane, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal", "idle":
		return LaneNormal, nil
	case "fixed":
		return LaneFixed, nil
	case "unscaled":
		return LaneUnscaled, nil
	default:
		return LaneNormal, fmt.Errorf("unknown timer lane %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Lane) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Lane) UnmarshalText(text []byte) error {
	parsed, err := ParseLane(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
