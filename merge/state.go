package merge

// State is a step of one merge job.
type State int

const (
	Planning State = iota
	Acquiring
	Merging
	Done
	Failed
)

var stateNames = map[State]string{
	Planning:  "planning",
	Acquiring: "acquiring",
	Merging:   "merging",
	Done:      "done",
	Failed:    "failed",
}

func (s State) String() string { return stateNames[s] }

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool { return s == Done || s == Failed }
