package reconcile

import "fmt"

// State is the furthest step a document reached during one pass.
type State int

const (
	StateNone State = iota
	StateFetched
	StateMasked
	StateDeactivated
	StateActivated
	StateRestored
	StateUnchanged
	StatePushed
)

var stateNames = [...]string{
	StateNone:        "NONE",
	StateFetched:     "FETCHED",
	StateMasked:      "MASKED",
	StateDeactivated: "DEACTIVATED",
	StateActivated:   "ACTIVATED",
	StateRestored:    "RESTORED",
	StateUnchanged:   "UNCHANGED",
	StatePushed:      "PUSHED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("reconcile: unknown state %q", b)
}

// Terminal reports whether s ends a document's pass.
func (s State) Terminal() bool {
	return s == StateUnchanged || s == StatePushed
}

// Status is the per-document outcome reported to callers.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusDryRun  Status = "dry_run"
	StatusFailed  Status = "failed"
)
