package extractor

// State is a step of the per-task extraction state machine.
type State int

const (
	StateDrafting State = iota
	StateRequesting
	StateParsing
	StateValidating
	StateAccepted
	StateRetrying
	StateSplitting
	StateFailed
)

var stateNames = [...]string{
	StateDrafting:   "drafting",
	StateRequesting: "requesting",
	StateParsing:    "parsing",
	StateValidating: "validating",
	StateAccepted:   "accepted",
	StateRetrying:   "retrying",
	StateSplitting:  "splitting",
	StateFailed:     "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether a task stops in s.
func (s State) Terminal() bool {
	return s == StateAccepted || s == StateSplitting || s == StateFailed
}
