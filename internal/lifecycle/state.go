package lifecycle

// State is the explicit lifecycle stage; the legacy boolean flags are projections of it
type State int

const (
	AwaitingEntry State = iota
	EntryPlaced
	PositionOpen
	ExitPlaced
	Terminated
)

func (s State) String() string {
	switch s {
	case AwaitingEntry:
		return "awaiting_entry"
	case EntryPlaced:
		return "entry_placed"
	case PositionOpen:
		return "position_open"
	case ExitPlaced:
		return "exit_placed"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Entered reports an entry order exists and the trade is live
func (s State) Entered() bool {
	return s == EntryPlaced || s == PositionOpen || s == ExitPlaced
}

// EntryFilled reports the entry order completed
func (s State) EntryFilled() bool {
	return s == PositionOpen || s == ExitPlaced
}

// PositionHeld reports a filled position is held
func (s State) PositionHeld() bool {
	return s.EntryFilled()
}

// ExitPending reports a protective exit order is working
func (s State) ExitPending() bool {
	return s == ExitPlaced
}
