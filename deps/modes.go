package deps

// Mode is the access a consumer requests on a resource
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

var modeNames = map[Mode]string{
	ModeRead:  "ModeRead",
	ModeWrite: "ModeWrite",
}

func (m Mode) String() string {
	return modeNames[m]
}

// ReleaseMode controls which connections a consumer drops when it is released
type ReleaseMode int

const (
	// ReleaseAll drops every connection
	ReleaseAll ReleaseMode = iota
	// ReleaseWriteGotoUnflushed drops write connections, keeps read connections and returns the consumer
	// to the unflushed state so it can be flushed again
	ReleaseWriteGotoUnflushed
)

var releaseModeNames = map[ReleaseMode]string{
	ReleaseAll:                "ReleaseAll",
	ReleaseWriteGotoUnflushed: "ReleaseWriteGotoUnflushed",
}

func (m ReleaseMode) String() string {
	return releaseModeNames[m]
}

// Status is passed to activation and release callbacks
type Status int

const (
	StatusOK Status = iota
	StatusError
)

var statusNames = map[Status]string{
	StatusOK:    "StatusOK",
	StatusError: "StatusError",
}

func (s Status) String() string {
	return statusNames[s]
}
