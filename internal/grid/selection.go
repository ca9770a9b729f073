package grid

// Cell is a (day, slot) coordinate of the week grid.
type Cell struct {
	Day  int `json:"dayIndex"`
	Slot int `json:"timeIndex"`
}

// State of a drag-select gesture.
type State int

const (
	Idle State = iota
	Selecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	default:
		return "unknown"
	}
}

// Range is a normalized selection on one day.
type Range struct {
	DayIndex     int `json:"dayIndex"`
	TimeIndex    int `json:"timeIndex"`
	EndTimeIndex int `json:"endTimeIndex"`
	SlotCount    int `json:"slotCount"`
}

// Selection tracks a drag across contiguous slots of a single day. It is a
// value: every transition returns a new Selection and leaves the receiver
// untouched. The zero Selection is Idle.
type Selection struct {
	state State
	start Cell
	end   Cell
}

// State reports the current gesture state.
func (s Selection) State() State { return s.state }

// Start returns the cell where the gesture began.
func (s Selection) Start() Cell { return s.start }

// End returns the most recent cell on the start day.
func (s Selection) End() Cell { return s.end }

// Begin starts a gesture on an empty cell. A gesture still in progress, as
// left behind by a lost pointer-up, is replaced. It is refused (ok=false,
// receiver returned unchanged) when the cell is occupied or no resource is
// selected.
func (s Selection) Begin(c Cell, occupied, resourceSelected bool) (Selection, bool) {
	if occupied || !resourceSelected {
		return s, false
	}
	return Selection{state: Selecting, start: c, end: c}, true
}

// Enter moves the end of the selection. Cells on another day are ignored.
func (s Selection) Enter(c Cell) Selection {
	if s.state != Selecting || c.Day != s.start.Day {
		return s
	}
	next := s
	next.end = Cell{Day: s.start.Day, Slot: c.Slot}
	return next
}

// Range returns the normalized closed interval currently highlighted.
func (s Selection) Range() (Range, bool) {
	if s.state != Selecting {
		return Range{}, false
	}
	lo, hi := s.start.Slot, s.end.Slot
	if hi < lo {
		lo, hi = hi, lo
	}
	return Range{DayIndex: s.start.Day, TimeIndex: lo, EndTimeIndex: hi, SlotCount: hi - lo + 1}, true
}

// Highlighted lists the slot indexes of the current range.
func (s Selection) Highlighted() []int {
	r, ok := s.Range()
	if !ok {
		return nil
	}
	out := make([]int, 0, r.SlotCount)
	for i := r.TimeIndex; i <= r.EndTimeIndex; i++ {
		out = append(out, i)
	}
	return out
}

// Commit finishes the gesture. A press without movement yields a one-slot
// range. The returned Selection is Idle.
func (s Selection) Commit() (Selection, Range, bool) {
	r, ok := s.Range()
	return Selection{}, r, ok
}
