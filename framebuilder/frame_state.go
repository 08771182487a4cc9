package framebuilder

// State is the lifecycle state of one frame in the ring
type State int

const (
	// StateClean frames have nothing to render and their clear values are intact
	StateClean State = iota
	// StateUnmodified frames have nothing to render, but the outputs may hold content from an
	// earlier frame
	StateUnmodified
	// StateDirty frames have accumulated commands that have not been submitted
	StateDirty
	// StateRendering frames are owned by the job engines
	StateRendering
	// StateComplete frames have finished rendering and are waiting to be reused or reset
	StateComplete
)

var stateMapping = map[State]string{
	StateClean:      "StateClean",
	StateUnmodified: "StateUnmodified",
	StateDirty:      "StateDirty",
	StateRendering:  "StateRendering",
	StateComplete:   "StateComplete",
}

func (s State) String() string {
	return stateMapping[s]
}

// cowFlavour determines what happens to the old contents of an output surface that is reallocated
// because older jobs are still using it
type cowFlavour int

const (
	// cowRealloc gives the surface fresh memory and discards the old contents
	cowRealloc cowFlavour = iota
	// cowDeep gives the surface fresh memory and copies the old contents over before rendering
	cowDeep
	// cowDeepCopyPending is cowDeep after a reallocation, until the copy has been executed
	cowDeepCopyPending
)

var cowFlavourMapping = map[cowFlavour]string{
	cowRealloc:         "Realloc",
	cowDeep:            "Deep",
	cowDeepCopyPending: "DeepCopyPending",
}

func (f cowFlavour) String() string {
	return cowFlavourMapping[f]
}
